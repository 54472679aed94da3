// Package api contains the HTTP handlers for the prompt chaining service.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"prompt-chaining/backend/internal/services"
	"prompt-chaining/backend/internal/workflow"
	"prompt-chaining/backend/pkg/models"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// WorkflowService manages and runs the stored workflow.
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, nodes []models.WorkflowNode) (*models.Workflow, error)
	RunWorkflow(ctx context.Context, input string) (string, error)
	GetWorkflow(ctx context.Context) (*models.Workflow, error)
}

// AccountService manages users and their tokens.
type AccountService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	RefreshTokens(ctx context.Context, token string) (*services.Tokens, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers for the REST API.
type Handler struct {
	workflows WorkflowService
	accounts  AccountService
	store     Pinger
	logger    Logger
}

// NewHandler creates a new Handler with required dependencies.
func NewHandler(workflows WorkflowService, accounts AccountService, store Pinger, logger Logger) *Handler {
	return &Handler{
		workflows: workflows,
		accounts:  accounts,
		store:     store,
		logger:    logger,
	}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Store     string    `json:"store"`
}

// HandleHealth returns the service status. It answers 503 when the store
// is unreachable.
// (GET /health)
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "prompt-chaining",
		Version:   Version,
		Store:     "ok",
	}
	code := http.StatusOK
	if err := h.store.Ping(c.Request().Context()); err != nil {
		h.logger.Error("store ping failed", "error", err)
		status.Status = "degraded"
		status.Store = "unreachable"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	// Kind names the workflow error category, when there is one.
	Kind string `json:"kind,omitempty"`
}

// HTTPErrorHandler renders handler errors as problem details. Workflow
// errors carry their own status; unknown errors become 500 without leaking
// their text.
func HTTPErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		problem := problemFor(err)
		problem.Instance = c.Request().URL.Path
		if problem.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", problem.Instance, "error", err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(problem.Status)
		} else {
			err = c.JSON(problem.Status, problem)
		}
		if err != nil {
			logger.Error("failed to write error response", "error", err)
		}
	}
}

func problemFor(err error) ProblemDetails {
	p := ProblemDetails{Type: "about:blank"}

	var (
		httpErr *echo.HTTPError
		wfErr   *workflow.Error
		valErr  *services.ValidationError
	)
	switch {
	case errors.As(err, &wfErr):
		p.Status = wfErr.Status()
		if p.Status == 0 {
			p.Status = http.StatusInternalServerError
		}
		p.Kind = string(wfErr.Kind)
		p.Detail = wfErr.Error()
	case errors.As(err, &valErr):
		p.Status = http.StatusBadRequest
		p.Detail = valErr.Error()
	case errors.Is(err, services.ErrEmailInUse):
		p.Status = http.StatusBadRequest
		p.Detail = err.Error()
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidRefreshToken),
		errors.Is(err, services.ErrUserNotFound):
		p.Status = http.StatusUnauthorized
		p.Detail = err.Error()
	case errors.As(err, &httpErr):
		p.Status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			p.Detail = msg
		} else {
			p.Detail = http.StatusText(httpErr.Code)
		}
	default:
		p.Status = http.StatusInternalServerError
		p.Detail = "internal server error"
	}

	p.Title = http.StatusText(p.Status)
	return p
}
