package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

type OtpTokenRepository interface {
	Create(ctx context.Context, token *domain.OtpToken) error
	// FindActive returns the newest unused, unexpired token for the
	// (identifier, purpose) pair.
	FindActive(ctx context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpToken, error)
	// FindNewestForUser returns the newest unused, unexpired token scoped to
	// a user id, used for WebAuthn challenge lookups.
	FindNewestForUser(ctx context.Context, userID string, purpose domain.OtpPurpose) (*domain.OtpToken, error)
	// ConsumeIfUnused flips is_used conditionally; exactly one of any number
	// of concurrent callers observes true.
	ConsumeIfUnused(ctx context.Context, id string) (bool, error)
	IncrementAttempts(ctx context.Context, id string) error
	DeleteByID(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, identifier string, purpose domain.OtpPurpose, now time.Time) error
	DeleteAllExpired(ctx context.Context, now time.Time) (int64, error)
}

type otpTokenRepo struct{ db *gorm.DB }

func NewOtpTokenRepository(db *gorm.DB) OtpTokenRepository { return &otpTokenRepo{db: db} }

func (r *otpTokenRepo) Create(ctx context.Context, token *domain.OtpToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *otpTokenRepo) FindActive(ctx context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpToken, error) {
	var token domain.OtpToken
	if err := r.db.WithContext(ctx).
		Where("identifier = ? AND type = ? AND is_used = ? AND expires_at > ?", identifier, purpose, false, time.Now()).
		Order("created_at DESC").
		First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *otpTokenRepo) FindNewestForUser(ctx context.Context, userID string, purpose domain.OtpPurpose) (*domain.OtpToken, error) {
	var token domain.OtpToken
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND is_used = ? AND expires_at > ?", userID, purpose, false, time.Now()).
		Order("created_at DESC").
		First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *otpTokenRepo) ConsumeIfUnused(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.OtpToken{}).
		Where("id = ? AND is_used = ?", id, false).
		Update("is_used", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *otpTokenRepo) IncrementAttempts(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.OtpToken{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
}

func (r *otpTokenRepo) DeleteByID(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.OtpToken{}).Error
}

func (r *otpTokenRepo) DeleteExpired(ctx context.Context, identifier string, purpose domain.OtpPurpose, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("identifier = ? AND type = ? AND expires_at <= ?", identifier, purpose, now).
		Delete(&domain.OtpToken{}).Error
}

func (r *otpTokenRepo) DeleteAllExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.OtpToken{})
	return res.RowsAffected, res.Error
}
