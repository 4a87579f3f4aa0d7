package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the raw query logged per request.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or mints a UUIDv4, stores it in
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id of the request: the value set by
// RequestID, else the response header, else the request header.
func RequestIDFrom(c *gin.Context) string {
	if s := c.GetString(requestIDKey); s != "" {
		return s
	}
	if s := c.Writer.Header().Get(requestIDHeader); s != "" {
		return s
	}
	if c.Request != nil {
		return c.GetHeader(requestIDHeader)
	}
	return ""
}

// Logger is the debug access logger. It records the viewer, the meeting id
// path parameter and client details, attaches a request-scoped logger for
// LoggerFrom, and logs one line per request when it completes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := requestLogger(c).With().
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		sl := &scopedLogger{base: l, user: func(s string) string { return s }}
		c.Set(loggerKey, sl)

		c.Next()

		completion(c, sl.viewer(c), start).
			Int("bytes_out", c.Writer.Size()).
			Msg("request")
	}
}

// requestLogger carries the fields every log line of a request shares.
func requestLogger(c *gin.Context) zerolog.Logger {
	return log.With().
		Str("request_id", RequestIDFrom(c)).
		Str("meeting_id", c.Param("id")).
		Logger()
}

// scopedLogger is what the access loggers store for LoggerFrom. The viewer
// fields are added on use because Identity runs after the access logger.
type scopedLogger struct {
	base zerolog.Logger
	user func(string) string
}

func (s *scopedLogger) viewer(c *gin.Context) zerolog.Logger {
	return s.base.With().
		Str("user_id", s.user(userIDFromCtx(c))).
		Bool("is_admin", IsAdmin(c)).
		Logger()
}

// completion opens the access log event at a level picked by outcome:
// error for 5xx or recorded Gin errors, warn for 4xx, info otherwise.
func completion(c *gin.Context, l zerolog.Logger, start time.Time) *zerolog.Event {
	status := c.Writer.Status()

	var ev *zerolog.Event
	switch {
	case len(c.Errors) > 0:
		ev = l.Error().Str("errors", c.Errors.String())
	case status >= http.StatusInternalServerError:
		ev = l.Error()
	case status >= http.StatusBadRequest:
		ev = l.Warn()
	default:
		ev = l.Info()
	}
	return ev.
		Int("status", status).
		Str("error_code", ErrorCode(c)).
		Dur("latency", time.Since(start))
}

// Recovery turns a panic into a 500 envelope when nothing was written yet,
// and logs the panic with its stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger set by Logger or
// RedactingLogger, or a *zerolog.Logger stored under the same key by the
// caller. Without one it returns the global logger tagged with the request
// id, if any.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		switch l := v.(type) {
		case *scopedLogger:
			vl := l.viewer(c)
			return &vl
		case *zerolog.Logger:
			return l
		}
	}
	lc := log.With()
	if rid := RequestIDFrom(c); rid != "" {
		lc = lc.Str("request_id", rid)
	}
	l := lc.Logger()
	return &l
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
