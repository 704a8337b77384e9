package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/access"
)

const (
	localUserID    = "user_id"
	localRole      = "role"
	localKYCStatus = "kyc_status"
)

// TokenVerifier resolves a bearer token to the calling user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (access.Actor, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and stores
// the caller in the request locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		actor, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid or revoked token")
		}

		c.Locals(localUserID, actor.UserID)
		c.Locals(localRole, actor.Role)
		c.Locals(localKYCStatus, actor.KYCStatus)
		return c.Next()
	}
}

// CurrentActor returns the caller stored by JWTAuth.
func CurrentActor(c *fiber.Ctx) access.Actor {
	userID, _ := c.Locals(localUserID).(string)
	role, _ := c.Locals(localRole).(string)
	kyc, _ := c.Locals(localKYCStatus).(string)
	return access.Actor{UserID: userID, Role: role, KYCStatus: kyc}
}

// RequireKYC rejects callers whose identity has not been verified.
func RequireKYC() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !access.IsVerified(CurrentActor(c)) {
			return fiber.NewError(http.StatusForbidden, access.ErrKYCRequired.Error())
		}
		return c.Next()
	}
}
