package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-meeting-backend/internal/domain"
)

// ResolveDisplayNames maps each known email (lower-cased) to the user's
// display name in one query. Unknown emails are absent from the result.
func ResolveDisplayNames(ctx context.Context, db *gorm.DB, emails []string) (map[string]string, error) {
	out := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	lowered := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			lowered = append(lowered, e)
		}
	}
	if len(lowered) == 0 {
		return out, nil
	}

	var users []domain.User
	err := db.WithContext(ctx).
		Select("email", "display_name").
		Where("lower(email) IN ?", lowered).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if name := strings.TrimSpace(u.DisplayName); name != "" {
			out[strings.ToLower(u.Email)] = name
		}
	}
	return out, nil
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
