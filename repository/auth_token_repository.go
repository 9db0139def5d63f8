package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/memevault/models"
)

// AuthTokenRepository reads and writes the auth_tokens table.
type AuthTokenRepository interface {
	Add(ctx context.Context, token string) error
	Has(ctx context.Context, token string) (bool, error)
	Touch(ctx context.Context, token string) error
	Remove(ctx context.Context, token string) (bool, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// GormAuthTokenRepository implements AuthTokenRepository with gorm.
type GormAuthTokenRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuthTokenRepository creates a gorm backed AuthTokenRepository.
func NewAuthTokenRepository(db *gorm.DB) *GormAuthTokenRepository {
	return &GormAuthTokenRepository{db: db, now: time.Now}
}

// Add stores a freshly issued token, marked as used at issue time.
func (r *GormAuthTokenRepository) Add(ctx context.Context, token string) error {
	now := r.now()
	row := models.AuthToken{Token: token, CreatedAt: now, LastUsedAt: &now}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add token: %w", err)
	}
	return nil
}

func (r *GormAuthTokenRepository) Has(ctx context.Context, token string) (bool, error) {
	var found []string
	err := r.db.WithContext(ctx).Model(&models.AuthToken{}).
		Where("token = ?", token).Limit(1).Pluck("token", &found).Error
	if err != nil {
		return false, fmt.Errorf("lookup token: %w", err)
	}
	return len(found) > 0, nil
}

func (r *GormAuthTokenRepository) Touch(ctx context.Context, token string) error {
	err := r.db.WithContext(ctx).Model(&models.AuthToken{}).
		Where("token = ?", token).Update("last_used_at", r.now()).Error
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

func (r *GormAuthTokenRepository) Remove(ctx context.Context, token string) (bool, error) {
	res := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.AuthToken{})
	if res.Error != nil {
		return false, fmt.Errorf("remove token: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Cleanup deletes tokens idle for longer than maxAge, plus rows with no
// last-use time at all.
func (r *GormAuthTokenRepository) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := r.now().Add(-maxAge)
	res := r.db.WithContext(ctx).
		Where("last_used_at IS NULL OR last_used_at < ?", cutoff).
		Delete(&models.AuthToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
