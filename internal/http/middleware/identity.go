package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meeting-backend/internal/sysutil"
)

// Identity headers.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserAdmin = "X-User-Admin"
)

const (
	ctxKeyUserID  = "userID"
	ctxKeyIsAdmin = "user.admin"

	defaultUserID = "demo-user"
)

// UserLookup reports whether userID is a known user and, if so, whether it
// is an administrator.
type UserLookup func(ctx context.Context, userID string) (isAdmin, found bool, err error)

// IdentityOptions configures Identity.
type IdentityOptions struct {
	// DefaultUser is used when X-User-ID is absent; "demo-user" when empty.
	DefaultUser string
	// TrustAdminHeader honours X-User-Admin for users the lookup does not know.
	TrustAdminHeader bool
}

// Identity resolves the viewer and stores it under the "userID" and
// "user.admin" context keys for handlers, the idempotency validator, the
// rate limiter and the access log. Authentication happens upstream; the
// X-User-ID header it forwards is trusted. The admin flag comes from the
// users table when the user is known there, otherwise from X-User-Admin
// when the deployment trusts that header.
func Identity(opts IdentityOptions, lookup UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := sysutil.FirstNonEmpty(strings.TrimSpace(c.GetHeader(HeaderUserID)), opts.DefaultUser, defaultUserID)
		admin := opts.TrustAdminHeader && sysutil.IsTruthy(c.GetHeader(HeaderUserAdmin))

		if lookup != nil {
			isAdmin, found, err := lookup(c.Request.Context(), uid)
			switch {
			case err != nil:
				log.Debug().Err(err).Str("user_id", uid).Msg("user lookup failed")
			case found:
				admin = isAdmin
			}
		}

		c.Set(ctxKeyUserID, uid)
		c.Set(ctxKeyIsAdmin, admin)
		c.Next()
	}
}

// UserID returns the viewer id set by Identity, falling back to the
// X-User-ID header and then "demo-user".
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return defaultUserID
}

// IsAdmin reports whether Identity marked the viewer as an administrator.
func IsAdmin(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIsAdmin)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// userIDFromCtx reads only the context value set by Identity.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return defaultUserID
}
