package group

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/middleware"
)

// Handler exposes group HTTP endpoints.
type Handler struct {
	service *Service
	logs    audit.Store
}

// NewHandler constructs a group HTTP handler. logs may be nil, in which case
// the logs endpoint returns an empty list.
func NewHandler(service *Service, logs audit.Store) *Handler {
	return &Handler{service: service, logs: logs}
}

type createRequest struct {
	Name               string `json:"name"`
	ContributionAmount int64  `json:"contribution_amount"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// Create registers a new group owned by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	g, err := h.service.Create(c.UserContext(), middleware.CurrentActor(c), CreateInput{Name: req.Name, ContributionAmount: req.ContributionAmount})
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusCreated).JSON(g)
}

// List returns the groups visible to the caller.
func (h *Handler) List(c *fiber.Ctx) error {
	groups, err := h.service.List(c.UserContext(), middleware.CurrentActor(c))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(groups)
}

// Get returns one group.
func (h *Handler) Get(c *fiber.Ctx) error {
	g, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(g)
}

// Turn returns the rotation position.
func (h *Handler) Turn(c *fiber.Ctx) error {
	status, err := h.service.CurrentTurn(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(status)
}

// Join adds the caller to the group.
func (h *Handler) Join(c *fiber.Ctx) error {
	g, err := h.service.Join(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "joined group", "group": g})
}

// MarkPaid records the caller's contribution for the current round.
func (h *Handler) MarkPaid(c *fiber.Ctx) error {
	g, contribution, err := h.service.MarkContributed(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"contribution":            contribution,
		"round":                   g.CurrentRound,
		"contributions_collected": g.Contributions.AllCollected(g.CurrentRound, g.Members),
	})
}

// Contributions lists contributions filtered by ?period= or ?round=. Without
// a filter the current round is returned.
func (h *Handler) Contributions(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	groupID := c.Params("groupId")

	if period := c.Query("period"); period != "" {
		out, err := h.service.ContributionsForPeriod(c.UserContext(), actor, groupID, period)
		if err != nil {
			return writeError(err)
		}
		return c.Status(http.StatusOK).JSON(out)
	}

	var round int
	if raw := c.Query("round"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fiber.NewError(http.StatusBadRequest, "round must be a positive integer")
		}
		round = n
	} else {
		g, err := h.service.Get(c.UserContext(), actor, groupID)
		if err != nil {
			return writeError(err)
		}
		round = g.CurrentRound
	}
	out, err := h.service.ContributionsForRound(c.UserContext(), actor, groupID, round)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(out)
}

// SetAmount changes the dues of the group.
func (h *Handler) SetAmount(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	g, err := h.service.SetContributionAmount(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"), req.Amount)
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "contribution amount set", "group": g})
}

// Advance moves the rotation on without a receipt.
func (h *Handler) Advance(c *fiber.Ctx) error {
	g, err := h.service.AdvanceTurn(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	holder, _ := CurrentTurnUser(&g)
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"current_round":      g.CurrentRound,
		"current_turn_index": g.CurrentTurnIndex,
		"current_user":       holder,
		"group":              g,
	})
}

// Receive releases the pot to the caller when it is their turn.
func (h *Handler) Receive(c *fiber.Ctx) error {
	g, err := h.service.ReceiveTurn(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "turn received", "group": g})
}

// Close deactivates the group.
func (h *Handler) Close(c *fiber.Ctx) error {
	g, err := h.service.Close(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	return c.Status(http.StatusOK).JSON(g)
}

// Logs returns the audit trail of the group to members and platform admins.
func (h *Handler) Logs(c *fiber.Ctx) error {
	g, err := h.service.Get(c.UserContext(), middleware.CurrentActor(c), c.Params("groupId"))
	if err != nil {
		return writeError(err)
	}
	if h.logs == nil {
		return c.Status(http.StatusOK).JSON([]audit.Event{})
	}
	events, err := h.logs.ListByGroup(c.UserContext(), g.ID, audit.Page{Limit: c.QueryInt("limit"), Skip: c.QueryInt("skip")})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to fetch logs")
	}
	return c.Status(http.StatusOK).JSON(events)
}

func writeError(err error) error {
	switch {
	case errors.Is(err, ErrGroupNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrKYCRequired),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrNotAMember),
		errors.Is(err, ErrNotYourTurn):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrDuplicateContribution),
		errors.Is(err, ErrVersionConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrContributionsIncomplete),
		errors.Is(err, ErrTurnNotFound),
		errors.Is(err, ErrInvalidState):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
