package calendar

import (
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ProductID identifies this service in exported calendars.
const ProductID = "-//tbourn//go-meeting-backend//EN"

// ExportICS renders merged events as a published iCalendar document.
// Local meetings get a stable UID derived from their id so calendar
// clients update rather than duplicate them across refreshes.
func ExportICS(events []domain.MergedEvent, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)

	for _, e := range events {
		ve := cal.AddEvent(exportUID(e))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(e.Start.UTC())
		ve.SetEndAt(e.End.UTC())
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if e.ConferencingLink != "" {
			ve.SetURL(e.ConferencingLink)
		}
		switch e.Status {
		case string(domain.StatusCancelled):
			ve.SetStatus(ics.ObjectStatusCancelled)
		case string(domain.StatusPostponed):
			ve.SetStatus(ics.ObjectStatusTentative)
		default:
			ve.SetStatus(ics.ObjectStatusConfirmed)
		}
		for _, a := range e.Attendees {
			if strings.TrimSpace(a.Email) == "" {
				continue
			}
			if a.Name != "" {
				ve.AddAttendee(a.Email, ics.WithCN(a.Name))
			} else {
				ve.AddAttendee(a.Email)
			}
		}
	}
	return cal.Serialize()
}

func exportUID(e domain.MergedEvent) string {
	if e.Source == domain.SourceExternal && e.ExternalID != "" {
		return e.ExternalID
	}
	return e.ID + "@go-meeting-backend"
}
