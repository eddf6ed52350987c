package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/officehub-api/internal/config"
	"github.com/noah-isme/officehub-api/internal/handler"
	"github.com/noah-isme/officehub-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	RoomHandler         *handler.RoomHandler
	MessageHandler      *handler.MessageHandler
	AttachmentHandler   *handler.AttachmentHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2")

	// The socket authenticates itself, either on the upgrade request or with its first frame.
	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(v2.Group("/chat"))
	}

	if deps.RoomHandler != nil || deps.MessageHandler != nil {
		rooms := v2.Group("/rooms", jwtMiddleware)
		if deps.RoomHandler != nil {
			deps.RoomHandler.Register(rooms)
		}
		if deps.MessageHandler != nil {
			deps.MessageHandler.Register(rooms)
		}
	}

	if deps.AttachmentHandler != nil {
		deps.AttachmentHandler.Register(v2.Group("/attachments", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(v2.Group("/notifications", jwtMiddleware))
	}
}
