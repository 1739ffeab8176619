// Package middleware provides the authentication and authorisation gates and
// the rate limiter applied by the router.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kavehrad/traffic-dashboard/internal/repository"
	"github.com/kavehrad/traffic-dashboard/internal/utils"
)

// Principal is the authenticated identity attached to the request context
// under the "principal" key (plus "user_id" and "role" for convenience).
type Principal struct {
	ID    uint64
	Email string
	Role  string
}

// authFailure carries the HTTP status and body for a failed authentication.
// 401 bodies stay generic on purpose: the response never says whether the
// token was missing, malformed, expired or pointing at an unknown account.
type authFailure struct {
	status int
	msg    string
}

// authenticate verifies the bearer token and resolves the principal: parse
// and check the HS256 signature and expiry, then load the user and require
// it to be active. Pure verify-then-lookup; nothing is written.
func authenticate(c echo.Context, secret string, users *repository.UserRepo) (Principal, *authFailure) {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, &authFailure{http.StatusUnauthorized, "not authorized"}
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	userID, _, _, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return Principal{}, &authFailure{http.StatusUnauthorized, "not authorized"}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		// Unknown id collapses into the generic 401 as well; a valid
		// signature for a non-existent account is still "not logged in".
		return Principal{}, &authFailure{http.StatusUnauthorized, "not authorized"}
	}
	if !u.IsActive {
		return Principal{}, &authFailure{http.StatusForbidden, "account deactivated"}
	}
	// The user row, not the token claims, is authoritative for email and
	// role: a role change takes effect on the next request, not the next
	// token refresh.
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

// Authenticated returns middleware that requires a valid access token for any
// active account, regardless of role.
func Authenticated(secret string, users *repository.UserRepo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, fail := authenticate(c, secret, users)
			if fail != nil {
				return c.JSON(fail.status, echo.Map{"error": fail.msg})
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// RequireRole returns middleware that authenticates the request itself and
// then checks the principal's role, so it can guard any endpoint without a
// separate authentication step. A missing or invalid credential always
// produces 401; 403 is reserved for an authenticated principal whose role is
// not in the allowed set (or a deactivated account).
func RequireRole(secret string, users *repository.UserRepo, roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, fail := authenticate(c, secret, users)
			if fail != nil {
				return c.JSON(fail.status, echo.Map{"error": fail.msg})
			}
			if !allowed[p.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

func setPrincipal(c echo.Context, p Principal) {
	c.Set("principal", p)
	c.Set("user_id", p.ID)
	c.Set("role", p.Role)
}

// CurrentPrincipal returns the principal stored by the auth middleware. The
// second value is false on routes that never passed through a gate.
func CurrentPrincipal(c echo.Context) (Principal, bool) {
	p, ok := c.Get("principal").(Principal)
	return p, ok
}
