package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// CalendarResponse is the merged calendar for the current user.
type CalendarResponse struct {
	Events   []domain.MergedEvent `json:"events"`
	Warnings []string             `json:"warnings"`
}

// ListCalendarEvents godoc
// @ID          listCalendarEvents
// @Summary     Merged calendar
// @Description Local meetings combined with external calendar events, each annotated with what the current user may do.
// @Description When the external calendar is unreachable the list holds local meetings only and carries a warning.
// @Tags        Calendar
// @Produce     json
//
// @Param       X-User-ID     header  string  false "User ID (demo header)"  example(user123)
// @Param       X-User-Admin  header  bool    false "Admin flag (trusted deployments only)"
//
// @Success     200  {object} handlers.CalendarResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /calendar/events [get]
func (h *Handlers) ListCalendarEvents(c *gin.Context) {
	view, err := h.calendar.Calendar(c.Request.Context(), viewer(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCalendarFailed, err.Error())
		return
	}
	resp := CalendarResponse{Events: view.Events, Warnings: view.Warnings}
	if resp.Events == nil {
		resp.Events = []domain.MergedEvent{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	ok(c, http.StatusOK, resp)
}

// ExportICS godoc
// @ID          exportCalendarICS
// @Summary     Export the calendar as iCalendar
// @Tags        Calendar
// @Produce     text/calendar
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {string} string "iCalendar document"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /calendar.ics [get]
func (h *Handlers) ExportICS(c *gin.Context) {
	doc, err := h.calendar.ExportICS(c.Request.Context(), viewer(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCalendarFailed, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="calendar.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
}

// RefreshCalendar godoc
// @ID          refreshCalendar
// @Summary     Refresh the calendar cache
// @Description Marks the cached external calendar stale so the next read refetches it. Administrators only.
// @Tags        Calendar
//
// @Param       X-User-ID     header  string  false "User ID (demo header)"  example(admin)
// @Param       X-User-Admin  header  bool    false "Admin flag (trusted deployments only)"
//
// @Success     202  {string} string "Accepted"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /calendar/refresh [post]
func (h *Handlers) RefreshCalendar(c *gin.Context) {
	if err := h.calendar.RefreshCalendar(c.Request.Context(), viewer(c)); err != nil {
		failErr(c, err, ErrCodeCalendarFailed)
		return
	}
	c.Status(http.StatusAccepted)
}
