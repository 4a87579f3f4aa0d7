// Package handlers implements the HTTP endpoints of the public API. Handlers
// bind and validate input, call the meeting service and translate its
// results and errors into JSON responses.
//
// Failed requests get an ErrorResponse:
//
//	HTTP/1.1 404 Not Found
//	{"request_id": "123e4567-e89b-12d3-a456-426614174000", "code": "not_found", "message": "meeting not found"}
//
// Successful mutations carry a "warnings" array when mirroring to the
// external calendar failed; the local change still stands.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meeting-backend/internal/http/middleware"
	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
	"github.com/tbourn/go-meeting-backend/internal/services"
)

// ErrorResponse is the error envelope of every endpoint. Code is one of the
// ErrCode constants; Message is safe to show to users.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"meeting not found"`
	// Offending input field, for validation errors
	Field string `json:"field,omitempty" example:"end_time"`
}

// ConflictResponse is the 409 envelope of a scheduling conflict. The client
// must re-propose; SuggestedStart is never booked automatically.
type ConflictResponse struct {
	ErrorResponse
	// Start that was asked for (for a series: the first conflicting occurrence)
	RequestedStart time.Time `json:"requested_start" example:"2025-06-02T14:30:00Z"`
	// Earliest acceptable start for that occurrence
	SuggestedStart time.Time `json:"suggested_start" example:"2025-06-02T15:02:00Z"`
	Messages       []string  `json:"messages"`
}

// Fail writes an error envelope and stops the handler chain. It is exported
// for the router's fallback handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func fail(c *gin.Context, status int, code, msg string) {
	send(c, status, ErrorResponse{Code: code, Message: msg}, nil)
}

// invalid rejects a request over a single input field.
func invalid(c *gin.Context, field, msg string) {
	send(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Message: msg, Field: field}, nil)
}

// send fills in the request id, records the code for metrics and logs
// server errors. body, when set, is written instead of env.
func send(c *gin.Context, status int, env ErrorResponse, body func(ErrorResponse) any) {
	env.RequestID = middleware.RequestIDFrom(c)
	middleware.SetErrorCode(c, env.Code)

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", env.Code).
			Str("message", env.Message).
			Msg("api error")
	}
	if body != nil {
		c.AbortWithStatusJSON(status, body(env))
		return
	}
	c.AbortWithStatusJSON(status, env)
}

// errorRule maps a class of service error onto a status and code. A blank
// message means err.Error().
type errorRule struct {
	match  func(error) bool
	status int
	code   string
	msg    string
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func asTransition(err error) bool {
	var te *lifecycle.TransitionError
	return errors.As(err, &te)
}

var errorRules = []errorRule{
	{is(services.ErrMeetingNotFound), http.StatusNotFound, ErrCodeNotFound, "meeting not found"},
	{is(services.ErrForbidden), http.StatusForbidden, ErrCodeForbidden, ""},
	{asTransition, http.StatusConflict, ErrCodeInvalidTransition, ""},
	{is(services.ErrInvalidTransition), http.StatusConflict, ErrCodeInvalidTransition, ""},
	{is(services.ErrNotEditable), http.StatusConflict, ErrCodeNotEditable, ""},
}

// failErr translates a service error into its envelope. Errors no rule
// matches are 500s carrying fallbackCode.
func failErr(c *gin.Context, err error, fallbackCode string) {
	var ce *services.ConflictError
	if errors.As(err, &ce) {
		send(c, http.StatusConflict, ErrorResponse{Code: ErrCodeConflict, Message: "requested time is not available"},
			func(env ErrorResponse) any {
				msgs := ce.Messages
				if msgs == nil {
					msgs = []string{}
				}
				return ConflictResponse{ErrorResponse: env, RequestedStart: ce.Requested, SuggestedStart: ce.SuggestedStart, Messages: msgs}
			})
		return
	}
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		invalid(c, ve.Field, ve.Reason)
		return
	}
	for _, r := range errorRules {
		if !r.match(err) {
			continue
		}
		msg := r.msg
		if msg == "" {
			msg = err.Error()
		}
		fail(c, r.status, r.code, msg)
		return
	}
	fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
