// Package handlers exposes the read-only status surface over HTTP.
package handlers

import (
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/aaronromeo/mailherald/internal/chat"
	"github.com/aaronromeo/mailherald/internal/poller"
	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/pkg/base"
)

// NewApp builds the Fiber app serving health, status, and the inbound
// command webhook.
func NewApp(p *poller.Poller, state *session.State, dispatcher *chat.Dispatcher) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(otelfiber.Middleware())

	app.Get("/healthz", Healthz)
	app.Get("/status", Status(p, state))
	app.Post("/commands", Commands(dispatcher))

	return app
}

// Healthz reports process liveness.
func Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// Status reports per-source scheduler state and session counters.
func Status(p *poller.Poller, state *session.State) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sources := p.Status()

		listenerCounts := map[base.Scope]int{}
		for _, scope := range []base.Scope{base.ScopeCancellation, base.ScopeModmail} {
			for _, listener := range state.ChannelsFor(scope) {
				listenerCounts[scope] += len(listener.Channels)
			}
		}

		cursors := map[string]int64{}
		for _, status := range sources {
			cursors[status.Source] = state.Cursor(status.Source).Unix()
		}

		return c.JSON(fiber.Map{
			"sources":      sources,
			"cursors":      cursors,
			"listeners":    listenerCounts,
			"correlations": state.CorrelationCount(),
		})
	}
}

// CommandRequest is one operator command relayed by the chat gateway.
type CommandRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// Commands accepts operator commands from the chat gateway and returns
// the reply text to post back.
func Commands(dispatcher *chat.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CommandRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}
		if req.GuildID == "" || req.ChannelID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "guild_id and channel_id are required"})
		}

		cmd, ok := chat.ParseCommand(req.Content)
		if !ok {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unrecognized command"})
		}

		reply := dispatcher.Handle(c.UserContext(), cmd, req.GuildID, req.ChannelID)
		return c.JSON(fiber.Map{"reply": reply})
	}
}
