package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/accountkit/account-auth-service/internal/api/http/handlers"
	"github.com/accountkit/account-auth-service/internal/auth"
	"github.com/accountkit/account-auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The auth middleware runs for every request;
// individual routes decide whether a principal is required.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.AuthMiddleware.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	users := app.Group("/api/users")
	users.Post("/login", cfg.Users.Login)
	users.Post("/register", cfg.Users.Register)

	users.Get("/me", auth.RequireAuthenticated(), cfg.Users.Me)
	users.Get("/", auth.RequireAuthenticated(), cfg.Users.List)
	users.Get("/:id", auth.RequireAuthenticated(), cfg.Users.Get)
	users.Put("/:id", auth.RequireAuthenticated(), cfg.Users.Update)
	users.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Users.Delete)
}
