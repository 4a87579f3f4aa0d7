// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Meeting
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Scheduling rules (conflicts, status
// transitions) live in the services layer.
//
// Error semantics:
//   - When a meeting is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - ListMeetingsInWindow(ctx, db, from, to) -> []domain.Meeting, error
//     Returns meetings whose interval overlaps [from, to), ordered by start.
//
//   - GetMeeting(ctx, db, id) -> *domain.Meeting, error
//
//   - SaveMeeting(ctx, db, m) -> error
//     Inserts or fully updates a meeting row.
//
//   - CreateMeetings(ctx, db, ms) -> error
//     Inserts a batch (one recurring series) in a single transaction.
//
//   - DeleteMeeting(ctx, db, id) -> error
//
//   - ListGroup(ctx, db, groupID) -> []domain.Meeting, error
//     Returns every meeting of one recurrence group, ordered by start.
//
//   - BulkUpdateStatus(ctx, db, updates) -> error
//     Writes many status changes in a single transaction.
//
//   - ListMeetingsPage / CountMeetings
//     Paginated listing of the meetings a user created.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListMeetingsInWindow returns every meeting whose [start, end) interval
// overlaps [from, to), ordered by start time then id so callers see a
// stable order for a fixed data set.
func ListMeetingsInWindow(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Meeting, error) {
	var out []domain.Meeting
	err := db.WithContext(ctx).
		Where("start_at < ? AND end_at > ?", to.UTC(), from.UTC()).
		Order("start_at asc, id asc").
		Find(&out).Error
	return out, err
}

// GetMeeting fetches a single meeting by id. If the record does not exist
// (or was deleted), it returns ErrNotFound.
func GetMeeting(ctx context.Context, db *gorm.DB, id uint) (*domain.Meeting, error) {
	var m domain.Meeting
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMeeting inserts m when its ID is zero and otherwise overwrites every
// column of the existing row. Times are stored in UTC.
func SaveMeeting(ctx context.Context, db *gorm.DB, m *domain.Meeting) error {
	m.StartAt = m.StartAt.UTC()
	m.EndAt = m.EndAt.UTC()
	return db.WithContext(ctx).Save(m).Error
}

// CreateMeetings inserts every meeting in ms atomically: either the whole
// series is persisted or none of it is. IDs are assigned in place.
func CreateMeetings(ctx context.Context, db *gorm.DB, ms []*domain.Meeting) error {
	if len(ms) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range ms {
			m.StartAt = m.StartAt.UTC()
			m.EndAt = m.EndAt.UTC()
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteMeeting soft-deletes the meeting with the given id. It returns
// ErrNotFound when no live row matched.
func DeleteMeeting(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Meeting{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListGroup returns the meetings sharing recurrence group groupID, ordered
// by start time.
func ListGroup(ctx context.Context, db *gorm.DB, groupID string) ([]domain.Meeting, error) {
	var out []domain.Meeting
	err := db.WithContext(ctx).
		Where("recurrence_group_id = ?", groupID).
		Order("start_at asc, id asc").
		Find(&out).Error
	return out, err
}

// BulkUpdateStatus writes every status change in one transaction. Rows that
// no longer exist are skipped silently.
func BulkUpdateStatus(ctx context.Context, db *gorm.DB, updates []domain.StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Session(&gorm.Session{SkipHooks: true})
		for _, u := range updates {
			err := tx.Model(&domain.Meeting{}).
				Where("id = ?", u.ID).
				Update("status", u.Status).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// CountMeetings returns the number of live meetings created by creatorID.
func CountMeetings(ctx context.Context, db *gorm.DB, creatorID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Meeting{}).
		Where("creator_id = ?", creatorID).
		Count(&total).Error
	return total, err
}

// ListMeetingsPage returns a page of meetings created by creatorID, ordered
// by start time descending (latest first). Use CountMeetings to obtain the
// total for pagination metadata.
func ListMeetingsPage(ctx context.Context, db *gorm.DB, creatorID string, offset, limit int) ([]domain.Meeting, error) {
	var out []domain.Meeting
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("start_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
