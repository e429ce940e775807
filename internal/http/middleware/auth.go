package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key holding the authenticated user's id.
const userIDKey = "userID"

// TokenVerifier checks a session token and returns the user id it carries.
// *auth.Tokens satisfies it.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserExistsFunc reports whether the user behind a valid token still exists.
type UserExistsFunc func(ctx context.Context, userID string) (bool, error)

// AuthOptions configures RequireAuth.
type AuthOptions struct {
	// CookieName is the session cookie read before the Authorization header.
	CookieName string
	Verifier   TokenVerifier
	// Exists is optional; when nil, a valid token is enough.
	Exists UserExistsFunc
}

// RequireAuth rejects requests without a valid session with 401 and stores
// the user id under "userID" for downstream handlers. The token is read from
// the session cookie, then from "Authorization: Bearer <token>".
func RequireAuth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := sessionToken(c, opts.CookieName)
		if tok == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Unauthorized - No token provided")
			return
		}
		uid, err := opts.Verifier.Verify(tok)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "Unauthorized - Invalid token")
			return
		}
		if opts.Exists != nil {
			ok, err := opts.Exists(c.Request.Context(), uid)
			if err != nil {
				LoggerFrom(c).Error().Err(err).Str("user_id", uid).Msg("auth user lookup failed")
				abortJSON(c, http.StatusInternalServerError, "internal_error", "Internal Server Error")
				return
			}
			if !ok {
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "Unauthorized - User not found")
				return
			}
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// CurrentUserID returns the id stored by RequireAuth, or "".
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

func sessionToken(c *gin.Context, cookie string) string {
	if cookie != "" {
		if v, err := c.Cookie(cookie); err == nil && v != "" {
			return v
		}
	}
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
