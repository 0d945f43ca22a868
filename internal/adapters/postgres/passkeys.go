package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

type PasskeyRepository interface {
	Create(ctx context.Context, credential *domain.PasskeyCredential) error
	FindByCredentialID(ctx context.Context, credentialID string) (*domain.PasskeyCredential, error)
	FindForUser(ctx context.Context, userID, id string) (*domain.PasskeyCredential, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	UpdateCounter(ctx context.Context, id string, counter uint32, usedAt time.Time) error
	UpdateName(ctx context.Context, id, deviceName string) error
	Delete(ctx context.Context, id string) error
}

type passkeyRepo struct{ db *gorm.DB }

func NewPasskeyRepository(db *gorm.DB) PasskeyRepository { return &passkeyRepo{db: db} }

func (r *passkeyRepo) Create(ctx context.Context, credential *domain.PasskeyCredential) error {
	return r.db.WithContext(ctx).Create(credential).Error
}

func (r *passkeyRepo) FindByCredentialID(ctx context.Context, credentialID string) (*domain.PasskeyCredential, error) {
	var credential domain.PasskeyCredential
	if err := r.db.WithContext(ctx).
		Where("credential_id = ?", credentialID).
		First(&credential).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *passkeyRepo) FindForUser(ctx context.Context, userID, id string) (*domain.PasskeyCredential, error) {
	var credential domain.PasskeyCredential
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&credential).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *passkeyRepo) ListByUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	var credentials []domain.PasskeyCredential
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_used_at DESC NULLS LAST").
		Find(&credentials).Error; err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *passkeyRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.PasskeyCredential{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *passkeyRepo) UpdateCounter(ctx context.Context, id string, counter uint32, usedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.PasskeyCredential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"counter": counter, "last_used_at": usedAt}).Error
}

func (r *passkeyRepo) UpdateName(ctx context.Context, id, deviceName string) error {
	return r.db.WithContext(ctx).
		Model(&domain.PasskeyCredential{}).
		Where("id = ?", id).
		Update("device_name", deviceName).Error
}

func (r *passkeyRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PasskeyCredential{}).Error
}
