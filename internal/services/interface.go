package services

import "context"

// CompletionClient is an interface for communicating with the LLM provider.
type CompletionClient interface {
	// Complete returns the generated text for prompt under systemPrompt.
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
