package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"prompt-chaining/backend/pkg/models"
)

// MemoryStore is an in-process Repository used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	workflow *models.Workflow
	users    map[string]*models.User
	tokens   map[string]*models.RefreshToken // keyed by user id
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

// ReplaceAll stores a copy of workflow as the only definition.
func (s *MemoryStore) ReplaceAll(_ context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflow = cloneWorkflow(workflow)
	return nil
}

// LoadLatest returns a copy of the stored definition.
func (s *MemoryStore) LoadLatest(_ context.Context) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workflow == nil {
		return nil, ErrNotFound
	}
	return cloneWorkflow(s.workflow), nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.UserID] = &cp
	return nil
}

func (s *MemoryStore) GetRefreshToken(_ context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Token == token && !t.ExpiresAt.Before(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error { return nil }

func cloneWorkflow(w *models.Workflow) *models.Workflow {
	cp := *w
	cp.Nodes = make([]models.WorkflowNode, len(w.Nodes))
	for i, n := range w.Nodes {
		if n.Condition != nil {
			cond := make(map[string]string, len(n.Condition))
			for k, v := range n.Condition {
				cond[k] = v
			}
			n.Condition = cond
		}
		cp.Nodes[i] = n
	}
	return &cp
}
