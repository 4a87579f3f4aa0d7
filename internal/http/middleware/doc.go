// Package middleware holds the Gin middleware of the meeting API: request
// correlation, access logging with PII redaction, panic recovery, viewer
// identity, idempotency keys, per-viewer rate limiting, security headers and
// Prometheus instrumentation.
//
// Recommended order on the engine:
//
//	RequestID → Logger/RedactingLogger → Recovery → Metrics →
//	Identity → IdempotencyValidator → RateLimiter → SecurityHeaders
//
// Every middleware that rejects a request writes the same envelope as the
// handlers ({request_id, code, message}) and records the code with
// SetErrorCode so it shows up in access logs and http_api_errors_total.
package middleware
