package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-intake/internal/api/http/handlers"
	"github.com/spec-kit/support-intake/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Stats          *handlers.StatsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/classifier", cfg.Health.Classifier)

	api := app.Group("/api")
	api.Post("/support-requests", cfg.Requests.Create)
	api.Get("/support-requests/:id", cfg.Requests.Get)
	api.Get("/support-requests", cfg.Requests.List)
	api.Get("/stats", cfg.Stats.Get)

	app.Post("/auth/admin/login", cfg.Admin.Login)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle)
	admin.Get("/requests/:id", cfg.Admin.GetRequest)
	admin.Post("/requests/:id/requeue", cfg.Admin.Requeue)
}
