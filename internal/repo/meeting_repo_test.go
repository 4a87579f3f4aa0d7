package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestListMeetingsInWindow_OverlapAndOrder(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()

	seedMeeting(t, db, domain.Meeting{Title: "before", StartAt: base.Add(-3 * time.Hour), EndAt: base.Add(-2 * time.Hour)})
	seedMeeting(t, db, domain.Meeting{Title: "straddles-start", StartAt: base.Add(-30 * time.Minute), EndAt: base.Add(30 * time.Minute)})
	seedMeeting(t, db, domain.Meeting{Title: "inside-late", StartAt: base.Add(3 * time.Hour)})
	seedMeeting(t, db, domain.Meeting{Title: "inside-early", StartAt: base.Add(time.Hour)})
	seedMeeting(t, db, domain.Meeting{Title: "touches-end", StartAt: base.Add(8 * time.Hour)})

	got, err := ListMeetingsInWindow(ctx, db, base, base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("ListMeetingsInWindow: %v", err)
	}
	want := []string{"straddles-start", "inside-early", "inside-late"}
	if len(got) != len(want) {
		t.Fatalf("got %d meetings, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Title != w {
			t.Fatalf("meeting %d = %q, want %q", i, got[i].Title, w)
		}
	}
}

func TestListMeetingsInWindow_AcceptsNonUTCBounds(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	seedMeeting(t, db, domain.Meeting{Title: "a", StartAt: base})

	athens := time.FixedZone("EET", 2*3600)
	got, err := ListMeetingsInWindow(context.Background(), db, base.In(athens), base.Add(time.Minute).In(athens))
	if err != nil || len(got) != 1 {
		t.Fatalf("got %d meetings, err %v", len(got), err)
	}
}

func TestGetMeeting_FoundAndNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	m := seedMeeting(t, db, domain.Meeting{Title: "a", StartAt: base})

	got, err := GetMeeting(context.Background(), db, m.ID)
	if err != nil || got.Title != "a" {
		t.Fatalf("GetMeeting = %+v, %v", got, err)
	}
	if _, err := GetMeeting(context.Background(), db, m.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveMeeting_InsertsThenUpdatesAndNormalizes(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()

	athens := time.FixedZone("EET", 2*3600)
	m := &domain.Meeting{Title: "plan", StartAt: base.In(athens), EndAt: base.Add(time.Hour).In(athens), CreatorID: "u1"}
	if err := SaveMeeting(ctx, db, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if m.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	if m.Configuration != domain.DefaultConfiguration() || m.Status != domain.StatusScheduled {
		t.Fatalf("save should normalize: %+v", m)
	}

	m.Title = "plan v2"
	m.Status = domain.StatusPostponed
	if err := SaveMeeting(ctx, db, m); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := GetMeeting(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMeeting: %v", err)
	}
	if got.Title != "plan v2" || got.Status != domain.StatusPostponed || !got.StartAt.Equal(base) {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestCreateMeetings_IsAtomic(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()
	group := "g-1"

	series := []*domain.Meeting{
		{Title: "w", StartAt: base, EndAt: base.Add(time.Hour), CreatorID: "u1", Recurrence: domain.Recurrence{Kind: domain.RecurWeekly, GroupID: &group}},
		{Title: "w", StartAt: base.AddDate(0, 0, 7), EndAt: base.AddDate(0, 0, 7).Add(time.Hour), CreatorID: "u1", Recurrence: domain.Recurrence{Kind: domain.RecurWeekly, GroupID: &group}},
	}
	if err := CreateMeetings(ctx, db, series); err != nil {
		t.Fatalf("CreateMeetings: %v", err)
	}
	if series[0].ID == 0 || series[1].ID == 0 {
		t.Fatal("ids should be assigned in place")
	}
	got, err := ListGroup(ctx, db, group)
	if err != nil || len(got) != 2 || !got[0].StartAt.Before(got[1].StartAt) {
		t.Fatalf("ListGroup = %+v, %v", got, err)
	}

	// A failing row rolls back the whole batch.
	dup := []*domain.Meeting{
		{Title: "ok", StartAt: base, EndAt: base.Add(time.Hour), CreatorID: "u1"},
		{ID: series[0].ID, Title: "clash", StartAt: base, EndAt: base.Add(time.Hour), CreatorID: "u1"},
	}
	if err := CreateMeetings(ctx, db, dup); err == nil {
		t.Fatal("expected primary key violation")
	}
	var n int64
	db.Model(&domain.Meeting{}).Count(&n)
	if n != 2 {
		t.Fatalf("rows = %d, want 2 after rollback", n)
	}
}

func TestDeleteMeeting(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()
	m := seedMeeting(t, db, domain.Meeting{Title: "a", StartAt: base})

	if err := DeleteMeeting(ctx, db, m.ID); err != nil {
		t.Fatalf("DeleteMeeting: %v", err)
	}
	if _, err := GetMeeting(ctx, db, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted meeting should be gone, got %v", err)
	}
	if err := DeleteMeeting(ctx, db, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should report ErrNotFound, got %v", err)
	}
	got, _ := ListMeetingsInWindow(ctx, db, base.Add(-time.Hour), base.Add(2*time.Hour))
	if len(got) != 0 {
		t.Fatalf("deleted meeting must not be listed: %+v", got)
	}
}

func TestBulkUpdateStatus(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()
	a := seedMeeting(t, db, domain.Meeting{Title: "a", StartAt: base})
	b := seedMeeting(t, db, domain.Meeting{Title: "b", StartAt: base.Add(2 * time.Hour)})

	err := BulkUpdateStatus(ctx, db, []domain.StatusUpdate{
		{ID: a.ID, Status: domain.StatusCompleted},
		{ID: b.ID, Status: domain.StatusInProgress},
		{ID: 9999, Status: domain.StatusCompleted},
	})
	if err != nil {
		t.Fatalf("BulkUpdateStatus: %v", err)
	}
	ga, _ := GetMeeting(ctx, db, a.ID)
	gb, _ := GetMeeting(ctx, db, b.ID)
	if ga.Status != domain.StatusCompleted || gb.Status != domain.StatusInProgress {
		t.Fatalf("statuses = %s, %s", ga.Status, gb.Status)
	}
	if err := BulkUpdateStatus(ctx, db, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestListMeetingsPage_AndCount(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedMeeting(t, db, domain.Meeting{Title: "m", StartAt: base.Add(time.Duration(i) * time.Hour), CreatorID: "u1"})
	}
	seedMeeting(t, db, domain.Meeting{Title: "other", StartAt: base, CreatorID: "u2"})

	total, err := CountMeetings(ctx, db, "u1")
	if err != nil || total != 5 {
		t.Fatalf("CountMeetings = %d, %v", total, err)
	}
	page, err := ListMeetingsPage(ctx, db, "u1", 0, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListMeetingsPage = %d, %v", len(page), err)
	}
	if !page[0].StartAt.Equal(base.Add(4 * time.Hour)) {
		t.Fatalf("latest meeting should come first, got %v", page[0].StartAt)
	}
	last, _ := ListMeetingsPage(ctx, db, "u1", 4, 2)
	if len(last) != 1 {
		t.Fatalf("last page size = %d", len(last))
	}
}

func TestStore_SatisfiesCoreInterfaces(t *testing.T) {
	db := newTestDB(t, &domain.Meeting{}, &domain.User{})
	s := NewStore(db)
	ctx := context.Background()
	m := seedMeeting(t, db, domain.Meeting{Title: "a", StartAt: base})

	if err := s.BulkUpdateStatus(ctx, []domain.StatusUpdate{{ID: m.ID, Status: domain.StatusCancelled}}); err != nil {
		t.Fatalf("BulkUpdateStatus: %v", err)
	}
	got, err := s.ListMeetingsInWindow(ctx, base, base.Add(time.Hour))
	if err != nil || len(got) != 1 || got[0].Status != domain.StatusCancelled {
		t.Fatalf("ListMeetingsInWindow = %+v, %v", got, err)
	}
	names, err := s.ResolveDisplayNames(ctx, []string{"nobody@example.com"})
	if err != nil || len(names) != 0 {
		t.Fatalf("ResolveDisplayNames = %v, %v", names, err)
	}
}
