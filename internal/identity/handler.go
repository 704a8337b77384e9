package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/middleware"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type kycRequest struct {
	NationalID string `json:"national_id"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusCreated).JSON(user)
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c).UserID)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(user)
}

// SubmitKYC queues the caller's identity for review.
func (h *Handler) SubmitKYC(c *fiber.Ctx) error {
	var req kycRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.SubmitKYC(c.UserContext(), middleware.CurrentActor(c), req.NationalID)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": user.ID, "kyc_status": user.KYCStatus})
}

// VerifyKYC approves the user named in the path.
func (h *Handler) VerifyKYC(c *fiber.Ctx) error {
	user, err := h.service.VerifyKYC(c.UserContext(), middleware.CurrentActor(c), c.Params("userId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": user.ID, "kyc_status": user.KYCStatus})
}

// RejectKYC declines the user named in the path.
func (h *Handler) RejectKYC(c *fiber.Ctx) error {
	user, err := h.service.RejectKYC(c.UserContext(), middleware.CurrentActor(c), c.Params("userId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": user.ID, "kyc_status": user.KYCStatus})
}

// PendingKYC lists users awaiting review.
func (h *Handler) PendingKYC(c *fiber.Ctx) error {
	users, err := h.service.PendingKYC(c.UserContext(), middleware.CurrentActor(c))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(users)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, access.ErrKYCRequired):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrKYCNotPending):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
