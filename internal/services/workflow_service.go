package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/internal/workflow"
	"prompt-chaining/backend/pkg/models"
)

// Runner executes a workflow definition.
type Runner interface {
	Run(ctx context.Context, def *models.Workflow, input string) (string, error)
}

// WorkflowService is a service for managing and running the workflow.
type WorkflowService struct {
	store  repository.WorkflowStore
	runner Runner
	logger Logger
	now    func() time.Time
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.WorkflowStore, runner Runner, logger Logger) *WorkflowService {
	return &WorkflowService{
		store:  store,
		runner: runner,
		logger: logger,
		now:    time.Now,
	}
}

// CreateWorkflow validates nodes and, when valid, replaces the stored
// definition with them.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, nodes []models.WorkflowNode) (*models.Workflow, error) {
	if err := workflow.Validate(nodes); err != nil {
		s.logger.Info("workflow rejected", "error", err, "kind", workflow.KindOf(err))
		return nil, err
	}

	if unreachable := workflow.Unreachable(nodes); len(unreachable) > 0 {
		s.logger.Warn("workflow has nodes unreachable from start", "nodes", unreachable)
	}

	wf := &models.Workflow{
		ID:        uuid.New().String(),
		Nodes:     nodes,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.ReplaceAll(ctx, wf); err != nil {
		return nil, err
	}

	s.logger.Info("workflow created", "workflow_id", wf.ID, "nodes", len(nodes))
	return wf, nil
}

// RunWorkflow runs the latest definition with input and returns its result.
func (s *WorkflowService) RunWorkflow(ctx context.Context, input string) (string, error) {
	wf, err := s.GetWorkflow(ctx)
	if err != nil {
		return "", err
	}
	return s.runner.Run(ctx, wf, input)
}

// GetWorkflow returns the latest definition.
func (s *WorkflowService) GetWorkflow(ctx context.Context) (*models.Workflow, error) {
	wf, err := s.store.LoadLatest(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &workflow.Error{Kind: workflow.KindNoWorkflowDefined}
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}
