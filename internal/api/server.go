package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/fathima-sithara/history-service/internal/auth"
)

func NewServer(h *Handlers, jv *auth.JWTValidator) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())

	api := app.Group("/v1")

	api.Use(func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing auth"})
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(401).JSON(fiber.Map{"error": "invalid auth"})
		}
		sub, err := jv.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", sub)
		return c.Next()
	})

	api.Post("/conversations", h.createConversation)
	api.Get("/conversations/:conv_id", h.getConversation)
	api.Delete("/conversations/:conv_id", h.deleteConversation)
	api.Post("/conversations/:conv_id/messages", h.sendMessage)
	api.Get("/conversations/:conv_id/messages", h.listMessages)
	api.Post("/conversations/:conv_id/read", h.markRead)
	api.Post("/conversations/:conv_id/compact", h.compact)

	return app
}
