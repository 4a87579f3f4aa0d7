package handlers

// Stable error codes carried in ErrorResponse.Code. The generic ones follow
// the HTTP status; the rest name a scheduling rule.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"

	ErrCodeValidation        = "validation_failed"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeNotEditable       = "not_editable"
	ErrCodeListFailed        = "list_failed"
	ErrCodeCalendarFailed    = "calendar_failed"
)
