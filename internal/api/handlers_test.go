package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/internal/config"
	"prompt-chaining/backend/internal/logging"
	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/internal/services"
	"prompt-chaining/backend/internal/workflow"
	"prompt-chaining/backend/pkg/models"
)

// MockWorkflowService satisfies WorkflowService.
type MockWorkflowService struct {
	mock.Mock
}

func (m *MockWorkflowService) CreateWorkflow(ctx context.Context, nodes []models.WorkflowNode) (*models.Workflow, error) {
	args := m.Called(ctx, nodes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowService) RunWorkflow(ctx context.Context, input string) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockWorkflowService) GetWorkflow(ctx context.Context) (*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

// MockAccountService satisfies AccountService.
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) SignUp(ctx context.Context, in services.SignUpInput) (*models.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*services.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Session), args.Error(1)
}

func (m *MockAccountService) RefreshTokens(ctx context.Context, token string) (*services.Tokens, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Tokens), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	echo      *echo.Echo
	workflows *MockWorkflowService
	accounts  *MockAccountService
	tokens    *auth.TokenIssuer
	store     *repository.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logging.NewNop()
	store := repository.NewMemoryStore()
	tokens, err := auth.NewTokenIssuer("api-test-secret", time.Hour)
	require.NoError(t, err)

	authz, err := auth.New(context.Background(), &config.Config{Environment: "TEST"}, tokens, store, logger)
	require.NoError(t, err)

	ts := &testServer{
		echo:      echo.New(),
		workflows: new(MockWorkflowService),
		accounts:  new(MockAccountService),
		tokens:    tokens,
		store:     store,
	}
	ts.echo.HTTPErrorHandler = HTTPErrorHandler(logger)
	h := NewHandler(ts.workflows, ts.accounts, store, logger)
	RegisterRoutes(ts.echo, h, authz)
	return ts
}

// bearer creates a stored user with role and returns its access token.
func (ts *testServer) bearer(t *testing.T, role models.Role) string {
	t.Helper()
	user := &models.User{ID: string(role) + "-id", Email: strings.ToLower(string(role)) + "@example.com", Role: role}
	require.NoError(t, ts.store.CreateUser(context.Background(), user))
	raw, err := ts.tokens.Issue(user.ID, role)
	require.NoError(t, err)
	return "Bearer " + raw
}

func (ts *testServer) do(method, path, body, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, Version, status.Version)
}

func TestHandleHealth_StoreDown(t *testing.T) {
	e := echo.New()
	h := NewHandler(nil, nil, pingFunc(func(context.Context) error { return errors.New("down") }), logging.NewNop())
	e.GET("/health", h.HandleHealth)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateWorkflow(t *testing.T) {
	ts := newTestServer(t)
	nodes := []models.WorkflowNode{
		{ID: "start", Prompt: "Hello {{input}}", Next: "end"},
		{ID: "end", Prompt: "Process {{lastOutput}}"},
	}
	ts.workflows.On("CreateWorkflow", mock.Anything, nodes).Return(&models.Workflow{ID: "wf-1", Nodes: nodes}, nil)

	body := `{"nodes":[{"id":"start","prompt":"Hello {{input}}","next":"end"},{"id":"end","prompt":"Process {{lastOutput}}"}]}`
	rec := ts.do(http.MethodPost, "/api/v1/workflow/create", body, ts.bearer(t, models.RoleAdmin))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	ts.workflows.AssertExpectations(t)
}

func TestCreateWorkflow_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.workflows.On("CreateWorkflow", mock.Anything, mock.Anything).
		Return(nil, &workflow.Error{Kind: workflow.KindCycleDetected})

	rec := ts.do(http.MethodPost, "/api/v1/workflow/create",
		`{"nodes":[{"id":"start","prompt":"{{input}}","next":"start"}]}`, ts.bearer(t, models.RoleAdmin))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, string(workflow.KindCycleDetected), p.Kind)
	assert.Equal(t, "/api/v1/workflow/create", p.Instance)
}

func TestCreateWorkflow_BadBody(t *testing.T) {
	ts := newTestServer(t)
	token := ts.bearer(t, models.RoleAdmin)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing nodes", `{}`},
		{"empty id", `{"nodes":[{"id":"","prompt":"x"}]}`},
		{"duplicate id", `{"nodes":[{"id":"start","prompt":"{{input}}"},{"id":"start","prompt":"again {{input}}"}]}`},
		{"condition not strings", `{"nodes":[{"id":"start","prompt":"x","condition":{"a":1}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/v1/workflow/create", tt.body, token)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	ts.workflows.AssertNotCalled(t, "CreateWorkflow", mock.Anything, mock.Anything)
}

func TestCreateWorkflow_RequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/workflow/create", `{"nodes":[]}`, ts.bearer(t, models.RoleUser))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	ts.workflows.AssertNotCalled(t, "CreateWorkflow", mock.Anything, mock.Anything)
}

func TestRunWorkflow(t *testing.T) {
	ts := newTestServer(t)
	ts.workflows.On("RunWorkflow", mock.Anything, "hi").Return("R2", nil)

	rec := ts.do(http.MethodPost, "/api/v1/workflow/run", `{"input":"hi"}`, ts.bearer(t, models.RoleUser))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"R2"}`, rec.Body.String())
}

func TestRunWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   workflow.Kind
	}{
		{"no workflow", &workflow.Error{Kind: workflow.KindNoWorkflowDefined}, http.StatusBadRequest, workflow.KindNoWorkflowDefined},
		{"unexpected output", &workflow.Error{Kind: workflow.KindUnexpectedConditionOutput, NodeID: "start", Output: "maybe"}, http.StatusBadRequest, workflow.KindUnexpectedConditionOutput},
		{"completion failed", &workflow.Error{Kind: workflow.KindCompletionFailed, NodeID: "start", Err: errors.New("boom")}, http.StatusInternalServerError, workflow.KindCompletionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.workflows.On("RunWorkflow", mock.Anything, "hi").Return("", tt.err)

			rec := ts.do(http.MethodPost, "/api/v1/workflow/run", `{"input":"hi"}`, ts.bearer(t, models.RoleAdmin))

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, string(tt.kind), p.Kind)
			assert.Equal(t, tt.err.Error(), p.Detail)
		})
	}
}

func TestRunWorkflow_UnknownErrorHidden(t *testing.T) {
	ts := newTestServer(t)
	ts.workflows.On("RunWorkflow", mock.Anything, "hi").Return("", errors.New("dial tcp: secret-host"))

	rec := ts.do(http.MethodPost, "/api/v1/workflow/run", `{"input":"hi"}`, ts.bearer(t, models.RoleUser))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-host")
}

func TestRunWorkflow_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/workflow/run", `{"input":"hi"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetWorkflow(t *testing.T) {
	ts := newTestServer(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ts.workflows.On("GetWorkflow", mock.Anything).Return(&models.Workflow{
		ID:        "wf-1",
		Nodes:     []models.WorkflowNode{{ID: "start", Prompt: "{{input}}"}},
		CreatedAt: created,
	}, nil)

	rec := ts.do(http.MethodGet, "/api/v1/workflow", "", ts.bearer(t, models.RoleUser))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wf-1", got.ID)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/me", "", ts.bearer(t, models.RoleUser))

	assert.Equal(t, http.StatusOK, rec.Code)
	var p auth.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, models.RoleUser, p.Role)
	assert.Equal(t, "user@example.com", p.Email)
}

func TestSignUp(t *testing.T) {
	ts := newTestServer(t)
	in := services.SignUpInput{Email: "a@b.co", Password: "Passw0rdX", FirstName: "A", LastName: "B"}
	ts.accounts.On("SignUp", mock.Anything, in).Return(&models.User{ID: "u1", Email: "a@b.co", PasswordHash: "hash", Role: models.RoleUser}, nil)

	rec := ts.do(http.MethodPost, "/auth/signup", `{"email":"a@b.co","password":"Passw0rdX","firstName":"A","lastName":"B"}`, "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash")
}

func TestSignUp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &services.ValidationError{Field: "password", Message: "too short"}, http.StatusBadRequest},
		{"email in use", services.ErrEmailInUse, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.accounts.On("SignUp", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := ts.do(http.MethodPost, "/auth/signup", `{"email":"a@b.co","password":"x"}`, "")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err.Error(), decodeProblem(t, rec).Detail)
		})
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.On("Login", mock.Anything, "a@b.co", "Passw0rdX").Return(&services.Session{
		Tokens: services.Tokens{AccessToken: "at", RefreshToken: "rt"},
		UserID: "u1",
		Role:   models.RoleAdmin,
	}, nil)

	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"Passw0rdX"}`, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "at", got["access_token"])
	assert.Equal(t, "rt", got["refreshToken"])
	assert.Equal(t, "ADMIN", got["role"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.On("Login", mock.Anything, "a@b.co", "nope").Return(nil, services.ErrInvalidCredentials)

	rec := ts.do(http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"nope"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)
	ts.accounts.On("RefreshTokens", mock.Anything, "rt").Return(&services.Tokens{AccessToken: "at2", RefreshToken: "rt2"}, nil)
	ts.accounts.On("RefreshTokens", mock.Anything, "stale").Return(nil, services.ErrInvalidRefreshToken)

	rec := ts.do(http.MethodPost, "/auth/refresh", `{"token":"rt"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"at2","refreshToken":"rt2"}`, rec.Body.String())

	rec = ts.do(http.MethodPost, "/auth/refresh", `{"token":"stale"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSpecHandler(t *testing.T) {
	rec := httptest.NewRecorder()

	SpecHandler("https://issuer.example.com")(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://issuer.example.com/.well-known/openid-configuration")
	assert.Contains(t, rec.Body.String(), "/api/v1/workflow/run")
}
