package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meeting-backend/internal/domain"
	"github.com/tbourn/go-meeting-backend/internal/http/middleware"
	"github.com/tbourn/go-meeting-backend/internal/lifecycle"
	"github.com/tbourn/go-meeting-backend/internal/services"
)

type stubCalendarSvc struct {
	view    *services.CalendarView
	err     error
	ics     string
	refresh func(lifecycle.Viewer) error
}

func (s stubCalendarSvc) Calendar(context.Context, lifecycle.Viewer) (*services.CalendarView, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.view == nil {
		return &services.CalendarView{}, nil
	}
	return s.view, nil
}

func (s stubCalendarSvc) ExportICS(context.Context, lifecycle.Viewer) (string, error) {
	return s.ics, s.err
}

func (s stubCalendarSvc) RefreshCalendar(_ context.Context, v lifecycle.Viewer) error {
	if s.refresh != nil {
		return s.refresh(v)
	}
	return nil
}

func newCalendarRouter(cal CalendarService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(stubMeetingSvc{}, cal)
	r := gin.New()
	r.Use(middleware.Identity(middleware.IdentityOptions{TrustAdminHeader: true}, nil))
	r.GET("/calendar/events", h.ListCalendarEvents)
	r.GET("/calendar.ics", h.ExportICS)
	r.POST("/calendar/refresh", h.RefreshCalendar)
	return r
}

func TestListCalendarEvents_EventsWarningsAndEmpty(t *testing.T) {
	view := &services.CalendarView{
		Events: []domain.MergedEvent{
			{ID: "local-1", Source: "local", Title: "Planning", Capabilities: domain.Capabilities{CanEdit: true}},
			{ID: "ext-9", Source: "external", Title: "Offsite"},
		},
		Warnings: []string{"external calendar unavailable; showing local meetings only"},
	}
	r := newCalendarRouter(stubCalendarSvc{view: view})

	w := do(r, http.MethodGet, "/calendar/events", "", map[string]string{"X-User-ID": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("-> %d", w.Code)
	}
	var out CalendarResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Events) != 2 || !out.Events[0].CanEdit || len(out.Warnings) != 1 {
		t.Fatalf("body = %+v", out)
	}
	if !strings.Contains(w.Body.String(), `"can_edit":true`) {
		t.Fatalf("capabilities must be flattened into the event: %s", w.Body.String())
	}

	r = newCalendarRouter(stubCalendarSvc{})
	w = do(r, http.MethodGet, "/calendar/events", "", nil)
	if !strings.Contains(w.Body.String(), `"events":[]`) || !strings.Contains(w.Body.String(), `"warnings":[]`) {
		t.Fatalf("empty view must use [] arrays: %s", w.Body.String())
	}
}

func TestListCalendarEvents_Error(t *testing.T) {
	r := newCalendarRouter(stubCalendarSvc{err: errors.New("db down")})
	w := do(r, http.MethodGet, "/calendar/events", "", nil)
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if w.Code != http.StatusInternalServerError || er.Code != ErrCodeCalendarFailed {
		t.Fatalf("-> %d %+v", w.Code, er)
	}
}

func TestExportICS_ContentType(t *testing.T) {
	doc := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"
	r := newCalendarRouter(stubCalendarSvc{ics: doc})

	w := do(r, http.MethodGet, "/calendar.ics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("-> %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content-type = %q", ct)
	}
	if w.Body.String() != doc {
		t.Fatalf("body = %q", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "calendar.ics") {
		t.Fatalf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
}

func TestRefreshCalendar_AdminOnly(t *testing.T) {
	refresh := func(v lifecycle.Viewer) error {
		if !v.IsAdmin {
			return services.ErrForbidden
		}
		return nil
	}
	r := newCalendarRouter(stubCalendarSvc{refresh: refresh})

	if w := do(r, http.MethodPost, "/calendar/refresh", "", map[string]string{"X-User-ID": "bob"}); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin -> %d", w.Code)
	}
	w := do(r, http.MethodPost, "/calendar/refresh", "", map[string]string{"X-User-ID": "root", "X-User-Admin": "true"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("admin -> %d", w.Code)
	}
}
