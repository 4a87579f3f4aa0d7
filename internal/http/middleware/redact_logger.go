package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Patterns scrubbed from queries, header values and viewer ids. UUIDs go
// first so the loose phone pattern never eats their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// alwaysMasked headers are replaced wholesale regardless of RedactOptions.
var alwaysMasked = []string{"authorization", "cookie", "set-cookie"}

// RedactOptions configures RedactingLogger. MaskHeaders names extra headers
// (case-insensitive) whose values are replaced with "[REDACTED]".
type RedactOptions struct {
	MaskHeaders []string
}

type redactor struct {
	masked map[string]struct{}
}

func newRedactor(extra []string) redactor {
	r := redactor{masked: make(map[string]struct{}, len(alwaysMasked)+len(extra))}
	for _, h := range append(alwaysMasked, extra...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.masked[h] = struct{}{}
		}
	}
	return r
}

func (redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger is the access logger used outside debug mode. Viewer ids
// are often emails and meeting queries carry attendee addresses, so the
// viewer id, the query string and header values are scrubbed of emails,
// phone numbers and UUIDs. Bodies are never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := newRedactor(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		headers := red.headers(c.Request.Header)
		query := red.text(c.Request.URL.RawQuery)

		sl := &scopedLogger{base: requestLogger(c), user: red.text}
		c.Set(loggerKey, sl)

		c.Next()

		completion(c, sl.viewer(c), start).
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Str("query", truncate(query, maxQueryLogLength)).
			Int("bytes", c.Writer.Size()).
			Interface("headers", headers).
			Msg("http_request")
	}
}
