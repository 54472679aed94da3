package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"prompt-chaining/backend/pkg/models"
)

// CreateWorkflowRequest is the body of the create endpoint.
type CreateWorkflowRequest struct {
	Nodes []models.WorkflowNode `json:"nodes"`
}

// RunWorkflowRequest is the body of the run endpoint.
type RunWorkflowRequest struct {
	Input string `json:"input"`
}

// RunWorkflowResponse carries the output of the last node.
type RunWorkflowResponse struct {
	Result string `json:"result"`
}

// CreateWorkflow validates the submitted nodes and replaces the stored
// workflow with them.
// (POST /api/v1/workflow/create)
func (h *Handler) CreateWorkflow(c echo.Context) error {
	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Nodes == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nodes must be an array")
	}
	seen := make(map[string]bool, len(req.Nodes))
	for i, n := range req.Nodes {
		if n.ID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("nodes[%d].id must be a non-empty string", i))
		}
		if seen[n.ID] {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("nodes[%d].id %q is not unique", i, n.ID))
		}
		seen[n.ID] = true
	}

	wf, err := h.workflows.CreateWorkflow(c.Request().Context(), req.Nodes)
	if err != nil {
		return err
	}

	h.logger.Info("workflow replaced", "workflow_id", wf.ID)
	return c.NoContent(http.StatusNoContent)
}

// RunWorkflow runs the stored workflow with the given input.
// (POST /api/v1/workflow/run)
func (h *Handler) RunWorkflow(c echo.Context) error {
	var req RunWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.workflows.RunWorkflow(c.Request().Context(), req.Input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RunWorkflowResponse{Result: result})
}

// GetWorkflow returns the stored workflow.
// (GET /api/v1/workflow)
func (h *Handler) GetWorkflow(c echo.Context) error {
	wf, err := h.workflows.GetWorkflow(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}
