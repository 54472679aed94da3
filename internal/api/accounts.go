package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/internal/services"
)

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of the refresh endpoint.
type RefreshRequest struct {
	Token string `json:"token"`
}

// SignUp creates an account.
// (POST /auth/signup)
func (h *Handler) SignUp(c echo.Context) error {
	var req services.SignUpInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	user, err := h.accounts.SignUp(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// Login exchanges credentials for a token pair.
// (POST /auth/login)
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	session, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// Refresh exchanges a refresh token for a new token pair.
// (POST /auth/refresh)
func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	tokens, err := h.accounts.RefreshTokens(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

// Me returns the authenticated caller.
// (GET /api/v1/me)
func (h *Handler) Me(c echo.Context) error {
	p, ok := auth.PrincipalFrom(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	return c.JSON(http.StatusOK, p)
}
