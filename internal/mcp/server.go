package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"prompt-chaining/backend/internal/workflow"
	"prompt-chaining/backend/pkg/models"
)

// WorkflowService runs and reads the stored workflow.
type WorkflowService interface {
	RunWorkflow(ctx context.Context, input string) (string, error)
	GetWorkflow(ctx context.Context) (*models.Workflow, error)
}

// Server exposes the workflow as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	workflows WorkflowService
}

func NewServer(workflows WorkflowService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Prompt Chaining",
			version,
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"run_workflow",
			mcp.WithDescription("Run the stored prompt chaining workflow and return the output of its last node"),
			mcp.WithString("input", mcp.Required(), mcp.Description("Text substituted for {{input}} in the start node")),
		),
		s.handleRunWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Return the stored workflow definition as JSON"),
		),
		s.handleGetWorkflow,
	)
}

func (s *Server) handleRunWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	input, ok := args["input"].(string)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: input"), nil
	}

	result, err := s.workflows.RunWorkflow(ctx, input)
	if err != nil {
		return mcp.NewToolResultError(toolError("Failed to run workflow", err)), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleGetWorkflow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := s.workflows.GetWorkflow(ctx)
	if err != nil {
		return mcp.NewToolResultError(toolError("Failed to get workflow", err)), nil
	}

	jsonBytes, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolError includes the text of workflow errors only; other failures may
// carry infrastructure details.
func toolError(prefix string, err error) string {
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return fmt.Sprintf("%s: %v", prefix, wfErr)
	}
	return prefix
}

// MountHTTPHandlers serves the streamable HTTP transport at /mcp and the
// SSE transport at /mcp/sse and /mcp/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	streamable := server.NewStreamableHTTPServer(mcpServer, server.WithEndpointPath("/mcp"))
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
