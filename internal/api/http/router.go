package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queue          *handlers.QueueHandler
	Stream         *handlers.StreamHandler
	Tickets        *handlers.TicketsHandler
	Services       *handlers.ServicesHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Ticket creation is the only public mutation.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/services", cfg.Services.List)
	app.Get("/services/:id", cfg.Services.Get)
	app.Post("/tickets", cfg.Tickets.CreateTicket)

	queue := app.Group("/queue")
	queue.Get("/", cfg.Queue.GetState)
	queue.Get("/stream", cfg.Stream.Stream)

	// Guards sit on each route so unknown /queue paths still answer 404.
	staffOnly := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireStaff(), h}
	}
	queue.Post("/next", staffOnly(cfg.Queue.Next)...)
	queue.Post("/prev", staffOnly(cfg.Queue.Prev)...)
	queue.Post("/reset", staffOnly(cfg.Queue.Reset)...)
	queue.Post("/set", staffOnly(cfg.Queue.Set)...)
	queue.Get("/tickets", staffOnly(cfg.Queue.ListTickets)...)

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Get("/staff/me", staffOnly(cfg.Staff.Me)...)
}
