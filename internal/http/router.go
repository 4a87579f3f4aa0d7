// Package httpapi mounts the meeting API on a Gin engine: the middleware
// chain (tracing, request ids, access logs, recovery, metrics, identity,
// idempotency, rate limiting, CORS and security headers), the operational
// endpoints and the versioned routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/config"
	"github.com/tbourn/go-meeting-backend/internal/http/handlers"
	"github.com/tbourn/go-meeting-backend/internal/http/middleware"
	"github.com/tbourn/go-meeting-backend/internal/repo"
	"github.com/tbourn/go-meeting-backend/internal/services"
)

// Headers accepted from browsers.
var allowedHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
	middleware.HeaderUserID, middleware.HeaderUserAdmin, middleware.HeaderIdempotencyKey,
}

// Headers browsers may read.
var exposedHeaders = []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}

// userLookup resolves the admin flag from the users table.
func userLookup(db *gorm.DB) middleware.UserLookup {
	return func(ctx context.Context, userID string) (bool, bool, error) {
		u, err := repo.GetUser(ctx, db, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, false, nil
		}
		if err != nil {
			return false, false, err
		}
		return u.IsAdmin, true, nil
	}
}

// idempotencyLookup reports whether a live idempotency record exists.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// RegisterRoutes installs the middleware chain and every endpoint on r.
//
// The order is significant. Tracing and the request id come first so the
// access log and recovery can use them. Identity runs before idempotency,
// which runs before the rate limiter so that a replayed request is never
// throttled. Gzip, CORS and security headers wrap the handlers last.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc *services.MeetingService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName), middleware.RequestID())

	// Access log; redacted outside debug mode.
	if cfg.Server.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	}

	r.Use(middleware.Recovery(), limitBody(cfg.Server.MaxBodyBytes), middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Identity(middleware.IdentityOptions{
		DefaultUser:      cfg.Identity.DefaultUserID,
		TrustAdminHeader: cfg.Identity.TrustAdminHeader,
	}, userLookup(db)))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  func(*gin.Context) string { return services.IdempotencyScope },
		},
		idempotencyLookup(db),
	))

	rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.KeyByUserOrIP()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)

	apiBase := cfg.Server.BasePath

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Calendar responses are per viewer and never cached by intermediaries.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStore:         false,
		EnablePolicy:    true,
		NoStorePrefixes: []string{joinPath(apiBase, "/calendar")},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.Server.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc, svc)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Calendar
		api.GET("/calendar/events", h.ListCalendarEvents)
		api.GET("/calendar.ics", h.ExportICS)
		api.POST("/calendar/refresh", h.RefreshCalendar)

		// Meetings
		api.POST("/meetings", h.ScheduleMeeting)
		api.GET("/meetings", h.ListMeetings)
		api.GET("/meetings/:id", h.GetMeeting)
		api.PUT("/meetings/:id", h.UpdateMeeting)
		api.DELETE("/meetings/:id", h.DeleteMeeting)
		api.POST("/meetings/:id/status", h.ChangeStatus)
		api.PUT("/meetings/:id/configuration", h.UpdateConfiguration)
	}
}

// corsHandlers builds the CORS middleware. With no allowlist every origin
// is accepted without credentials, and Access-Control-Allow-Origin is set
// even on requests that carry no Origin. With an allowlist, a listed Origin
// is echoed back and Vary: Origin is added.
func corsHandlers(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  allowedHeaders,
		ExposeHeaders: exposedHeaders,
		MaxAge:        12 * time.Hour,
	}

	var echo gin.HandlerFunc
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		echo = func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
	} else {
		cc.AllowOrigins = origins
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		echo = func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", o)
				h.Add("Vary", "Origin")
			}
			c.Next()
		}
	}
	return []gin.HandlerFunc{echo, cors.New(cc)}
}

// limitBody caps request bodies at maxBytes; reading past the cap fails.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to the API base, treating "/" (or empty) as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
