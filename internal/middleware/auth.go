package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/admin"
	"github.com/lulukarama/izmirdisestetigi/internal/auth"
)

const IdentityKey = "identity"

// SessionSource reports the console's current session.
type SessionSource interface {
	State() admin.State
}

// RequireSession admits requests carrying a bearer token for the operator who
// is signed in to the console. While the startup session check is still
// running it answers 503 so clients retry instead of treating the console as
// signed out.
func RequireSession(src SessionSource, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(h, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			claims, err := auth.ParseToken(strings.TrimPrefix(h, "Bearer "), secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			st := src.State()
			if st.IsLoading {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session check in progress"})
			}
			// a token outlives logout; it only counts for the operator signed in now
			if !st.IsAuthenticated || st.User == nil || st.User.ID != claims.UserID {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not signed in"})
			}
			c.Set(IdentityKey, *st.User)
			return next(c)
		}
	}
}
