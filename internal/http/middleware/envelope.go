package middleware

import "github.com/gin-gonic/gin"

const ctxKeyErrorCode = "api.error_code"

// SetErrorCode records the API error code of the response being written.
func SetErrorCode(c *gin.Context, code string) { c.Set(ctxKeyErrorCode, code) }

// ErrorCode returns the code recorded by SetErrorCode, or "".
func ErrorCode(c *gin.Context) string {
	v, _ := c.Get(ctxKeyErrorCode)
	s, _ := v.(string)
	return s
}

// abortJSON ends the request with the error envelope.
func abortJSON(c *gin.Context, status int, code, message string) {
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    message,
	})
}

// routeOf returns the matched route pattern (e.g. /api/v1/meetings/:id), or
// the raw path when no route matched. Metrics and logs label by it to keep
// meeting ids out of label values.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
