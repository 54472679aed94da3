package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/pkg/models"
)

// RegisterRoutes mounts the public, auth and /api/v1 routes on e. The
// /api/v1 group is returned so callers can add more authenticated routes.
func RegisterRoutes(e *echo.Echo, h *Handler, authz *auth.Auth) *echo.Group {
	e.GET("/health", h.HandleHealth)

	e.POST("/auth/signup", h.SignUp)
	e.POST("/auth/login", h.Login)
	e.POST("/auth/refresh", h.Refresh)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	admin := echo.WrapMiddleware(auth.RequireRole(models.RoleAdmin))
	member := echo.WrapMiddleware(auth.RequireRole(models.RoleAdmin, models.RoleUser))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiGroup.GET("/me", h.Me)
	apiGroup.POST("/workflow/create", h.CreateWorkflow, admin)
	apiGroup.POST("/workflow/run", h.RunWorkflow, member)
	apiGroup.GET("/workflow", h.GetWorkflow, member)

	return apiGroup
}
