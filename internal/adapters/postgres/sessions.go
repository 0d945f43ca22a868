package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

type SessionRepository interface {
	// CreatePair persists the access+refresh rows of one login as a single
	// atomic unit; a half-persisted pair must never become visible.
	CreatePair(ctx context.Context, access, refresh *domain.Session) error
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	Deactivate(ctx context.Context, token string) error
	ListActive(ctx context.Context, userID string, typ domain.SessionType) ([]domain.Session, error)
	DeactivateForUser(ctx context.Context, userID string, typ domain.SessionType) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) CreatePair(ctx context.Context, access, refresh *domain.Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(access).Error; err != nil {
			return err
		}
		return tx.Create(refresh).Error
	})
}

func (r *sessionRepo) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Deactivate(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("token = ?", token).
		Update("is_active", false).Error
}

func (r *sessionRepo) ListActive(ctx context.Context, userID string, typ domain.SessionType) ([]domain.Session, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("created_at DESC")
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var sessions []domain.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) DeactivateForUser(ctx context.Context, userID string, typ domain.SessionType) error {
	q := r.db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	return q.Update("is_active", false).Error
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}
