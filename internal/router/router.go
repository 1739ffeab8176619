// Package router wires handlers, auth gates and the rate limiter onto the
// Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/kavehrad/traffic-dashboard/internal/handler"
	"github.com/kavehrad/traffic-dashboard/internal/middleware"
	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
)

// RegisterRoutes registers the routes that need no authentication: just the
// health check for now.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the session and account endpoints.
//
// The credential endpoints under /v1/auth take the rate limiter and no auth
// gate — they are how a session starts. Logout also lives there: revoking a
// refresh token needs possession of the token, not an access credential.
// The /v1 group carries the endpoints that require a live session of any
// role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, acct *handler.AccountHandler,
	limiter echo.MiddlewareFunc, users *repository.UserRepo, jwtSecret string) {

	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", acct.ForgotPassword)
	g.POST("/reset-password", acct.ResetPassword)

	auth := e.Group("/v1")
	auth.Use(middleware.Authenticated(jwtSecret, users))
	auth.GET("/me", a.Me)
	auth.POST("/logout-all", a.LogoutAll)
	auth.POST("/password", acct.ChangePassword)
}

// RegisterOwner registers the user-administration surface. Every route is
// gated by a self-contained owner check: no credential yields 401, a
// non-owner credential 403.
func RegisterOwner(e *echo.Echo, h *handler.OwnerUserHandler, users *repository.UserRepo, jwtSecret string) {
	g := e.Group("/v1/owner/users")
	g.Use(middleware.RequireRole(jwtSecret, users, model.RoleOwner))
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id/role", h.ChangeRole)
	g.PUT("/:id/active", h.SetActive)
	g.DELETE("/:id", h.Delete)
}
