package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/identity"
)

// RegisterIdentityRoutes wires profile and KYC review endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)

	kyc := r.Group("/kyc")
	kyc.Post("/submit", h.SubmitKYC)
	kyc.Get("/pending", h.PendingKYC)
	kyc.Post("/:userId/verify", h.VerifyKYC)
	kyc.Post("/:userId/reject", h.RejectKYC)
}
