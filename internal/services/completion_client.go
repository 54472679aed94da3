package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPCompletionClient calls an OpenAI-compatible chat completions endpoint.
type HTTPCompletionClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewHTTPCompletionClient creates a new HTTPCompletionClient. A zero timeout
// leaves requests bounded only by the caller's context.
func NewHTTPCompletionClient(url, apiKey, model string, timeout time.Duration) *HTTPCompletionClient {
	return &HTTPCompletionClient{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete returns the trimmed content of the first choice.
func (c *HTTPCompletionClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	requestBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion request failed: status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
