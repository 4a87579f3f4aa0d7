package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

func TestGetIdempotency_BlankScopeOrKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	if rec, err := GetIdempotency(context.Background(), db, "u1", "   ", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank scope, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "u1", "meetings", "", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID:         "expired",
		UserID:     "u1",
		Scope:      "meetings",
		Key:        "k1",
		MeetingIDs: []uint{1},
		Status:     201,
		CreatedAt:  now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if rec, err := GetIdempotency(context.Background(), db, "u1", "meetings", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for expired, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "u1", "meetings", "missing", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for missing, got (%v, %v)", rec, err)
	}
}

func TestCreateAndGetIdempotency_RoundTripsMeetingIDs(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	start := time.Now().UTC()

	rec, err := CreateIdempotency(context.Background(), db, "u9", "meetings", "k9", []uint{4, 5, 6}, 201, time.Now(), 90*time.Minute)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.UserID != "u9" || rec.Scope != "meetings" || rec.Key != "k9" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !(rec.ExpiresAt.After(start) && rec.ExpiresAt.Before(start.Add(2*time.Hour))) {
		t.Fatalf("unexpected ExpiresAt: %v", rec.ExpiresAt)
	}

	got, err := GetIdempotency(context.Background(), db, "u9", "meetings", "k9", start)
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if len(got.MeetingIDs) != 3 || got.MeetingIDs[0] != 4 || got.MeetingIDs[2] != 6 {
		t.Fatalf("meeting ids = %v", got.MeetingIDs)
	}

	// Same key under another user is a different record.
	if _, err := GetIdempotency(context.Background(), db, "other", "meetings", "k9", start); err != ErrNotFound {
		t.Fatalf("keys must be scoped per user, got %v", err)
	}
}

func TestCreateIdempotency_Duplicate(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})

	if _, err := CreateIdempotency(context.Background(), db, "u1", "meetings", "k", []uint{1}, 201, time.Now(), time.Hour); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := CreateIdempotency(context.Background(), db, "u1", "meetings", "k", []uint{2}, 201, time.Now(), time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newTestDB(t) // intentionally NOT migrating idempotency
	_, err := CreateIdempotency(context.Background(), db, "uX", "meetings", "kX", nil, 201, time.Now(), time.Minute)
	if err == nil {
		t.Fatalf("expected error when table is missing")
	}
	if err == ErrDuplicate {
		t.Fatalf("expected non-duplicate error, got ErrDuplicate")
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()
	for i, exp := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		rec := &domain.Idempotency{
			ID: string(rune('a' + i)), UserID: "u", Scope: "meetings", Key: string(rune('a' + i)),
			MeetingIDs: []uint{}, Status: 201, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: exp,
		}
		if err := db.Create(rec).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := PurgeExpiredIdempotency(context.Background(), db, now)
	if err != nil || n != 2 {
		t.Fatalf("purged %d, err %v; want 2", n, err)
	}
	var left int64
	db.Model(&domain.Idempotency{}).Count(&left)
	if left != 1 {
		t.Fatalf("remaining = %d, want 1", left)
	}
}
