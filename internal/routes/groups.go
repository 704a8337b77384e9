package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/group"
	"github.com/congo-pay/tontine/internal/middleware"
)

// RegisterGroupRoutes wires tontine group endpoints. Every mutation sits behind
// the KYC gate; idem replays unsafe requests that carry an Idempotency-Key.
func RegisterGroupRoutes(r fiber.Router, h *group.Handler, idem fiber.Handler) {
	groups := r.Group("/groups", idem)
	kyc := middleware.RequireKYC()

	groups.Get("/", h.List)
	groups.Post("/", kyc, h.Create)
	groups.Get("/:groupId", h.Get)
	groups.Get("/:groupId/turn", h.Turn)
	groups.Get("/:groupId/contributions", h.Contributions)
	groups.Get("/:groupId/logs", h.Logs)
	groups.Post("/:groupId/join", kyc, h.Join)
	groups.Post("/:groupId/contributions", kyc, h.MarkPaid)
	groups.Post("/:groupId/contribution-amount", kyc, h.SetAmount)
	groups.Post("/:groupId/advance-turn", kyc, h.Advance)
	groups.Post("/:groupId/receive", kyc, h.Receive)
	groups.Post("/:groupId/close", kyc, h.Close)
}
