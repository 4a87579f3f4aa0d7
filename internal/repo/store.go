package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// Store binds the package functions to one *gorm.DB so they can be passed
// where the scheduling core expects a meeting store or a user directory.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) ListMeetingsInWindow(ctx context.Context, from, to time.Time) ([]domain.Meeting, error) {
	return ListMeetingsInWindow(ctx, s.DB, from, to)
}

func (s *Store) BulkUpdateStatus(ctx context.Context, updates []domain.StatusUpdate) error {
	return BulkUpdateStatus(ctx, s.DB, updates)
}

func (s *Store) ResolveDisplayNames(ctx context.Context, emails []string) (map[string]string, error) {
	return ResolveDisplayNames(ctx, s.DB, emails)
}
