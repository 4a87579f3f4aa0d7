// Meeting HTTP handlers.
//
// This file exposes REST endpoints for meeting resources:
//   - POST   /meetings                     (schedule, single or recurring)
//   - GET    /meetings                     (list own, paginated, ETag support)
//   - GET    /meetings/{id}                (read)
//   - PUT    /meetings/{id}                (edit details, time, minutes)
//   - POST   /meetings/{id}/status         (manual transition)
//   - DELETE /meetings/{id}                (delete one or the whole series)
//   - PUT    /meetings/{id}/configuration  (room preferences)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/domain"
	"github.com/tbourn/go-meeting-backend/internal/http/middleware"
	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
	"github.com/tbourn/go-meeting-backend/internal/repo"
	"github.com/tbourn/go-meeting-backend/internal/services"
	"github.com/tbourn/go-meeting-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// MeetingService defines meeting operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MeetingService interface {
	// Schedule creates a meeting or a recurring series, or reports a conflict.
	Schedule(ctx context.Context, viewer lifecycle.Viewer, in services.ScheduleInput) (*services.Result, error)
	// Get returns one meeting with the viewer's capabilities on it.
	Get(ctx context.Context, viewer lifecycle.Viewer, id uint) (*domain.Meeting, domain.Capabilities, error)
	// List returns a page of the viewer's own meetings and the total count.
	List(ctx context.Context, viewer lifecycle.Viewer, page, pageSize int) ([]domain.Meeting, int64, error)
	// Update edits details, time or minutes of a meeting.
	Update(ctx context.Context, viewer lifecycle.Viewer, id uint, in services.UpdateInput) (*services.Result, error)
	// ChangeStatus performs a manual transition.
	ChangeStatus(ctx context.Context, viewer lifecycle.Viewer, id uint, target domain.MeetingStatus, newStart, newEnd time.Time) (*services.Result, error)
	// Delete removes a meeting, or its recurrence group when series is set.
	Delete(ctx context.Context, viewer lifecycle.Viewer, id uint, series bool) (*services.Result, error)
	// UpdateConfiguration replaces the room preferences of a meeting.
	UpdateConfiguration(ctx context.Context, viewer lifecycle.Viewer, id uint, cfg domain.Configuration) (*services.Result, error)
}

// CalendarService defines the merged calendar operations.
type CalendarService interface {
	// Calendar returns merged, capability-annotated events for the viewer.
	Calendar(ctx context.Context, viewer lifecycle.Viewer) (*services.CalendarView, error)
	// ExportICS renders the viewer's calendar as iCalendar text.
	ExportICS(ctx context.Context, viewer lifecycle.Viewer) (string, error)
	// RefreshCalendar softly invalidates the calendar caches (admin only).
	RefreshCalendar(ctx context.Context, viewer lifecycle.Viewer) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for meetings and the calendar.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	meetings MeetingService
	calendar CalendarService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(meetings MeetingService, cal CalendarService) *Handlers {
	return &Handlers{meetings: meetings, calendar: cal}
}

// viewer builds the lifecycle viewer from the identity set by middleware.
func viewer(c *gin.Context) lifecycle.Viewer {
	return lifecycle.Viewer{ID: middleware.UserID(c), IsAdmin: middleware.IsAdmin(c)}
}

//
// DTOs
//

// RecurrenceRequest describes how a new meeting repeats.
type RecurrenceRequest struct {
	// Kind is one of none, daily, weekly, biweekly, monthly, yearly.
	Kind string `json:"kind" example:"weekly"`
	// EndDate is the last day of the series (YYYY-MM-DD or RFC3339).
	EndDate string `json:"end_date" example:"2025-06-30"`
	// Weekdays restricts weekly and biweekly series (e.g. "mon", "wednesday").
	Weekdays []string `json:"weekdays" example:"mon,wed"`
}

// ScheduleMeetingRequest is the JSON payload for scheduling meetings.
type ScheduleMeetingRequest struct {
	Title          string                `json:"title"            example:"Sprint planning"`
	Description    string                `json:"description"      example:"Q3 goals"`
	Location       string                `json:"location"         example:"Room 4"`
	StartTime      time.Time             `json:"start_time"       example:"2025-06-02T14:30:00Z"`
	EndTime        time.Time             `json:"end_time"         example:"2025-06-02T15:00:00Z"`
	ParticipantIDs []string              `json:"participant_ids"`
	AttendeeEmails []string              `json:"attendee_emails"`
	Recurrence     *RecurrenceRequest    `json:"recurrence,omitempty"`
	Conferencing   bool                  `json:"conferencing"     example:"true"`
	Configuration  *domain.Configuration `json:"configuration,omitempty"`
}

// UpdateMeetingRequest is the JSON payload for editing a meeting. Absent
// fields are left untouched.
type UpdateMeetingRequest struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Location       *string    `json:"location,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	ParticipantIDs *[]string  `json:"participant_ids,omitempty"`
	AttendeeEmails *[]string  `json:"attendee_emails,omitempty"`
	Minutes        *string    `json:"minutes,omitempty"`
}

// StatusRequest is the JSON payload for a manual status change. Start and
// end are required when postponing.
type StatusRequest struct {
	Status    string     `json:"status"               binding:"required" example:"postponed"`
	StartTime *time.Time `json:"start_time,omitempty" example:"2025-06-03T14:30:00Z"`
	EndTime   *time.Time `json:"end_time,omitempty"   example:"2025-06-03T15:00:00Z"`
}

// MeetingResponse is a single meeting with the viewer's capabilities.
type MeetingResponse struct {
	Meeting      domain.Meeting      `json:"meeting"`
	Capabilities domain.Capabilities `json:"capabilities"`
}

// MeetingsResponse is the result of a mutation. Warnings report failed
// mirroring to the external calendar; the local change still stands.
type MeetingsResponse struct {
	Meetings []domain.Meeting `json:"meetings"`
	Warnings []string         `json:"warnings"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMeetingsResponse wraps a page of meetings and pagination information.
type ListMeetingsResponse struct {
	Meetings   []domain.Meeting `json:"meetings"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination reads page and page_size, bounded by utils.ParsePage.
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	return p.Number, p.Size
}

// meetingID parses the :id path parameter, aborting with 400 on failure.
func meetingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "meeting id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func mutationResponse(res *services.Result) MeetingsResponse {
	out := MeetingsResponse{Meetings: res.Meetings, Warnings: res.Warnings}
	if out.Meetings == nil {
		out.Meetings = []domain.Meeting{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"su": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
	"mo": time.Monday, "mon": time.Monday, "monday": time.Monday,
	"tu": time.Tuesday, "tue": time.Tuesday, "tuesday": time.Tuesday,
	"we": time.Wednesday, "wed": time.Wednesday, "wednesday": time.Wednesday,
	"th": time.Thursday, "thu": time.Thursday, "thursday": time.Thursday,
	"fr": time.Friday, "fri": time.Friday, "friday": time.Friday,
	"sa": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
}

// parseWeekdays maps weekday names (two letters, short or full, any case)
// to a mask.
func parseWeekdays(names []string) (domain.WeekdayMask, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", n)
		}
		days = append(days, d)
	}
	return domain.MaskOf(days...), nil
}

// parseEndDate accepts a calendar date or an RFC3339 timestamp. A bare date
// is anchored at noon UTC so it names the same day in the scheduling zone.
func parseEndDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		d = d.Add(12 * time.Hour)
		return &d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("end_date must be YYYY-MM-DD or RFC3339")
	}
	return &t, nil
}

// scheduleInput converts the request into service input, aborting with 400
// on malformed recurrence data.
func scheduleInput(c *gin.Context, req ScheduleMeetingRequest) (services.ScheduleInput, bool) {
	in := services.ScheduleInput{
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		Start:          req.StartTime,
		End:            req.EndTime,
		ParticipantIDs: req.ParticipantIDs,
		AttendeeEmails: req.AttendeeEmails,
		Recurrence:     domain.RecurNone,
		Conferencing:   req.Conferencing,
		Configuration:  req.Configuration,
	}
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		in.IdempotencyKey = key
	}
	if req.Recurrence == nil {
		return in, true
	}

	kind, ok := domain.ParseRecurrenceKind(req.Recurrence.Kind)
	if !ok {
		invalid(c, "recurrence.kind", "unknown recurrence kind")
		return in, false
	}
	end, err := parseEndDate(req.Recurrence.EndDate)
	if err != nil {
		invalid(c, "recurrence.end_date", err.Error())
		return in, false
	}
	mask, err := parseWeekdays(req.Recurrence.Weekdays)
	if err != nil {
		invalid(c, "recurrence.weekdays", err.Error())
		return in, false
	}
	in.Recurrence = kind
	in.RecurrenceEnd = end
	in.Weekdays = mask
	return in, true
}

//
// Handlers
//

// ScheduleMeeting godoc
// @ID          scheduleMeeting
// @Summary     Schedule a meeting or a recurring series
// @Description Validates the request, expands the series and checks every occurrence against local meetings and the external calendar.
// @Description On conflict nothing is booked and the earliest acceptable start is returned. With an Idempotency-Key, retries return the originally created meetings.
// @Tags        Meetings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key"        example(3f5e1b7a-create-1)
// @Param       body             body    handlers.ScheduleMeetingRequest  true  "Schedule payload"
//
// @Success     201  {object}  handlers.MeetingsResponse
// @Success     200  {object}  handlers.MeetingsResponse  "Idempotent replay"
// @Header      200  {string}  Idempotency-Replayed "true when the stored result was returned"
// @Failure     400  {object}  handlers.ErrorResponse     "Validation failed"
// @Failure     409  {object}  handlers.ConflictResponse  "Requested time is not available"
// @Failure     500  {object}  handlers.ErrorResponse     "Internal error"
// @Router      /meetings [post]
func (h *Handlers) ScheduleMeeting(c *gin.Context) {
	var req ScheduleMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in, valid := scheduleInput(c, req)
	if !valid {
		return
	}

	res, err := h.meetings.Schedule(c.Request.Context(), viewer(c), in)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, mutationResponse(res))
		return
	}
	ok(c, http.StatusCreated, mutationResponse(res))
}

// ListMeetings godoc
// @ID          listMeetings
// @Summary     List own meetings (paginated)
// @Description Returns a page of the meetings the current user created, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Meetings
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMeetingsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /meetings [get]
func (h *Handlers) ListMeetings(c *gin.Context) {
	ctx := c.Request.Context()
	v := viewer(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.meetings.(*services.MeetingService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MeetingsStats(ctx, db, v.ID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"meetings:%s:%d:%d"`, v.ID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.meetings.List(ctx, v, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Meeting{}
	}

	pg := utils.Page{Number: page, Size: pageSize}
	ok(c, http.StatusOK, ListMeetingsResponse{
		Meetings: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: pg.TotalPages(total),
			HasNext:    pg.HasNext(total),
		},
	})
}

// GetMeeting godoc
// @ID          getMeeting
// @Summary     Get a meeting
// @Description Returns the meeting with its status brought up to date and the current user's capabilities.
// @Tags        Meetings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Meeting ID"             example(7)
//
// @Success     200  {object} handlers.MeetingResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Meeting not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /meetings/{id} [get]
func (h *Handlers) GetMeeting(c *gin.Context) {
	id, valid := meetingID(c)
	if !valid {
		return
	}
	m, caps, err := h.meetings.Get(c.Request.Context(), viewer(c), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MeetingResponse{Meeting: *m, Capabilities: caps})
}

// UpdateMeeting godoc
// @ID          updateMeeting
// @Summary     Edit a meeting
// @Description Edits details, time or minutes. A new time passes the conflict check, ignoring the meeting itself. Minutes are editable once the meeting has started.
// @Tags        Meetings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Meeting ID"             example(7)
// @Param       body       body    handlers.UpdateMeetingRequest  true  "Fields to change"
//
// @Success     200  {object} handlers.MeetingsResponse
// @Failure     400  {object} handlers.ErrorResponse    "Validation failed"
// @Failure     403  {object} handlers.ErrorResponse    "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse    "Meeting not found"
// @Failure     409  {object} handlers.ConflictResponse "Conflict or not editable"
// @Failure     500  {object} handlers.ErrorResponse    "Internal error"
// @Router      /meetings/{id} [put]
func (h *Handlers) UpdateMeeting(c *gin.Context) {
	id, valid := meetingID(c)
	if !valid {
		return
	}
	var req UpdateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.meetings.Update(c.Request.Context(), viewer(c), id, services.UpdateInput{
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		Start:          req.StartTime,
		End:            req.EndTime,
		ParticipantIDs: req.ParticipantIDs,
		AttendeeEmails: req.AttendeeEmails,
		Minutes:        req.Minutes,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, mutationResponse(res))
}

// ChangeStatus godoc
// @ID          changeMeetingStatus
// @Summary     Change a meeting's status
// @Description Manual transition to in_progress, completed, postponed or cancelled. Postponing requires a new, conflict-free interval.
// @Tags        Meetings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Meeting ID"             example(7)
// @Param       body       body    handlers.StatusRequest  true  "Target status"
//
// @Success     200  {object} handlers.MeetingsResponse
// @Failure     400  {object} handlers.ErrorResponse    "Bad request"
// @Failure     403  {object} handlers.ErrorResponse    "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse    "Meeting not found"
// @Failure     409  {object} handlers.ConflictResponse "Invalid transition or conflict"
// @Failure     500  {object} handlers.ErrorResponse    "Internal error"
// @Router      /meetings/{id}/status [post]
func (h *Handlers) ChangeStatus(c *gin.Context) {
	id, valid := meetingID(c)
	if !valid {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	target := domain.MeetingStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		invalid(c, "status", "unknown status")
		return
	}

	var newStart, newEnd time.Time
	if req.StartTime != nil {
		newStart = *req.StartTime
	}
	if req.EndTime != nil {
		newEnd = *req.EndTime
	}

	res, err := h.meetings.ChangeStatus(c.Request.Context(), viewer(c), id, target, newStart, newEnd)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, mutationResponse(res))
}

// DeleteMeeting godoc
// @ID          deleteMeeting
// @Summary     Delete a meeting
// @Description Deletes the meeting, or every meeting of its series with series=true. External events are removed best effort; failures become warnings.
// @Tags        Meetings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Meeting ID"             example(7)
// @Param       series     query   bool    false "Delete the whole series" default(false)
//
// @Success     200  {object} handlers.MeetingsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse "Meeting not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /meetings/{id} [delete]
func (h *Handlers) DeleteMeeting(c *gin.Context) {
	id, valid := meetingID(c)
	if !valid {
		return
	}
	series, _ := strconv.ParseBool(c.DefaultQuery("series", "false"))

	res, err := h.meetings.Delete(c.Request.Context(), viewer(c), id, series)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, mutationResponse(res))
}

// UpdateConfiguration godoc
// @ID          updateMeetingConfiguration
// @Summary     Replace room preferences
// @Description Stores the normalized preferences and queues a sync to the conferencing room. Omitted fields take their defaults.
// @Tags        Meetings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    int     true  "Meeting ID"             example(7)
// @Param       body       body    domain.Configuration  true  "Room preferences"
//
// @Success     200  {object} handlers.MeetingsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse "Meeting not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /meetings/{id}/configuration [put]
func (h *Handlers) UpdateConfiguration(c *gin.Context) {
	id, valid := meetingID(c)
	if !valid {
		return
	}
	var cfg domain.Configuration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.meetings.UpdateConfiguration(c.Request.Context(), viewer(c), id, cfg)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, mutationResponse(res))
}
