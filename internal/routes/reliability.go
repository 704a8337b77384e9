package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/reliability"
)

// RegisterReliabilityRoutes wires score endpoints.
func RegisterReliabilityRoutes(r fiber.Router, h *reliability.Handler) {
	rel := r.Group("/reliability")
	rel.Get("/me", h.Me)
	rel.Get("/leaderboard", h.Leaderboard)
	rel.Get("/:userId/audit", h.Audit)
	rel.Put("/:userId", h.Set)
}
