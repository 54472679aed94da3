package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"prompt-chaining/backend/pkg/models"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	nodes      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS workflows_created_at_idx ON workflows (created_at DESC);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name    TEXT NOT NULL,
	last_name     TEXT NOT NULL,
	role          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	user_id    TEXT PRIMARY KEY REFERENCES users (id) ON DELETE CASCADE,
	token      TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL
);`

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore. The store closes db on Close.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables the store needs.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// ReplaceAll deletes every workflow and inserts workflow in one transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, workflow *models.Workflow) error {
	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM workflows"); err != nil {
			return fmt.Errorf("failed to delete workflows: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO workflows (id, nodes, created_at) VALUES ($1, $2::jsonb, $3)",
			workflow.ID, string(nodes), workflow.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert workflow: %w", err)
		}
		return nil
	})
}

// LoadLatest returns the newest workflow.
func (s *PostgresStore) LoadLatest(ctx context.Context) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		nodes    []byte
	)
	err := s.db.QueryRow(ctx,
		"SELECT id, nodes, created_at FROM workflows ORDER BY created_at DESC LIMIT 1",
	).Scan(&workflow.ID, &nodes, &workflow.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}
	return &workflow, nil
}

// CreateUser inserts user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, string(user.Role),
		user.CreatedAt, user.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = "id, email, password_hash, first_name, last_name, role, created_at, updated_at"

// GetUserByEmail looks a user up by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email)
}

// GetUserByID looks a user up by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user models.User
		role string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &role,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Role = models.Role(role)
	return &user, nil
}

// SaveRefreshToken upserts the refresh token of token.UserID.
func (s *PostgresStore) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at`,
		token.UserID, token.Token, token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns an unexpired refresh token.
func (s *PostgresStore) GetRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	err := s.db.QueryRow(ctx,
		"SELECT token, user_id, expires_at FROM refresh_tokens WHERE token = $1 AND expires_at >= $2",
		token, now,
	).Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close(context.Context) error {
	s.db.Close()
	return nil
}
