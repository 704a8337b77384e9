package reliability

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/identity"
	"github.com/congo-pay/tontine/internal/middleware"
)

// Handler exposes reliability endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a reliability HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type scoreRequest struct {
	Score *int `json:"score"`
}

// Me returns the caller's score.
func (h *Handler) Me(c *fiber.Ctx) error {
	score, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c).UserID)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(score)
}

// Leaderboard lists top users by score.
func (h *Handler) Leaderboard(c *fiber.Ctx) error {
	scores, err := h.service.Leaderboard(c.UserContext(), c.QueryInt("limit", defaultLeaderboardSize))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(scores)
}

// Set overrides a user's score.
func (h *Handler) Set(c *fiber.Ctx) error {
	var req scoreRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Score == nil {
		return fiber.NewError(http.StatusBadRequest, "score is required")
	}
	score, err := h.service.SetScore(c.UserContext(), middleware.CurrentActor(c), c.Params("userId"), *req.Score)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(score)
}

// Audit recomputes a user's score from history.
func (h *Handler) Audit(c *fiber.Ctx) error {
	report, err := h.service.Audit(c.UserContext(), middleware.CurrentActor(c), c.Params("userId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(report)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotAuthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidScore):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
