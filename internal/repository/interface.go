package repository

import (
	"context"
	"errors"
	"time"

	"prompt-chaining/backend/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("already exists")
)

// WorkflowStore keeps the single active workflow definition.
type WorkflowStore interface {
	// ReplaceAll deletes every stored definition and stores workflow.
	ReplaceAll(ctx context.Context, workflow *models.Workflow) error
	// LoadLatest returns the most recently created definition, or
	// ErrNotFound when none exists.
	LoadLatest(ctx context.Context) (*models.Workflow, error)
}

// UserStore keeps accounts and their refresh tokens.
type UserStore interface {
	// CreateUser stores a new user. ErrDuplicate is returned when the email
	// is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// SaveRefreshToken stores token as the only refresh token of its user.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// GetRefreshToken returns token when it exists and expires after now.
	GetRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error)
}

// Repository is the full persistence surface of the service.
type Repository interface {
	WorkflowStore
	UserStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
