package routes

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/middleware"
)

// RegisterAuditRoutes exposes the audit trail. Everything except /audit/me is
// restricted to platform administrators.
func RegisterAuditRoutes(r fiber.Router, store audit.Store) {
	logs := r.Group("/audit")

	logs.Get("/me", func(c *fiber.Ctx) error {
		events, err := store.ListByUser(c.UserContext(), middleware.CurrentActor(c).UserID, pageFrom(c))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "failed to fetch logs")
		}
		return c.Status(http.StatusOK).JSON(events)
	})

	admin := logs.Group("", requireAdmin)
	admin.Get("/all", func(c *fiber.Ctx) error {
		events, err := store.ListAll(c.UserContext(), pageFrom(c))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "failed to fetch logs")
		}
		return c.Status(http.StatusOK).JSON(events)
	})
	admin.Get("/action/:action", func(c *fiber.Ctx) error {
		events, err := store.ListByAction(c.UserContext(), c.Params("action"), pageFrom(c))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "failed to fetch logs")
		}
		return c.Status(http.StatusOK).JSON(events)
	})
	admin.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := store.Stats(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "failed to fetch stats")
		}
		return c.Status(http.StatusOK).JSON(stats)
	})
	admin.Get("/range", func(c *fiber.Ctx) error {
		start, err := time.Parse(time.RFC3339, c.Query("start"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "start must be an RFC3339 timestamp")
		}
		end, err := time.Parse(time.RFC3339, c.Query("end"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "end must be an RFC3339 timestamp")
		}
		if end.Before(start) {
			return fiber.NewError(http.StatusBadRequest, "end must not be before start")
		}
		events, err := store.ListByRange(c.UserContext(), start, end, c.QueryInt("limit"))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "failed to fetch logs")
		}
		return c.Status(http.StatusOK).JSON(events)
	})
}

func requireAdmin(c *fiber.Ctx) error {
	if !access.IsAdmin(middleware.CurrentActor(c)) {
		return fiber.NewError(http.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func pageFrom(c *fiber.Ctx) audit.Page {
	return audit.Page{Limit: c.QueryInt("limit"), Skip: c.QueryInt("skip")}
}
