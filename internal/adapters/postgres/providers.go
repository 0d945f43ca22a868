package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

type ProviderRepository interface {
	FindLink(ctx context.Context, providerID string) (*domain.AuthProviderUser, error)
	ListByUser(ctx context.Context, userID string) ([]domain.AuthProviderUser, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	// CreateLink joins a user to an external provider, provisioning the
	// provider row when first referenced.
	CreateLink(ctx context.Context, userID, providerID, providerName string) error
	DeleteLink(ctx context.Context, userID, providerID string) error
	// CreateUserWithLink creates a brand-new user together with the provider
	// link and default role, all-or-nothing.
	CreateUserWithLink(ctx context.Context, user *domain.User, providerID, providerName, roleName string) error
}

type providerRepo struct{ db *gorm.DB }

func NewProviderRepository(db *gorm.DB) ProviderRepository { return &providerRepo{db: db} }

func (r *providerRepo) FindLink(ctx context.Context, providerID string) (*domain.AuthProviderUser, error) {
	var link domain.AuthProviderUser
	if err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *providerRepo) ListByUser(ctx context.Context, userID string) ([]domain.AuthProviderUser, error) {
	var links []domain.AuthProviderUser
	if err := r.db.WithContext(ctx).
		Preload("Provider").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *providerRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.AuthProviderUser{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *providerRepo) CreateLink(ctx context.Context, userID, providerID, providerName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createLink(tx, userID, providerID, providerName)
	})
}

func (r *providerRepo) DeleteLink(ctx context.Context, userID, providerID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND provider_id = ?", userID, providerID).
		Delete(&domain.AuthProviderUser{}).Error
}

func (r *providerRepo) CreateUserWithLink(ctx context.Context, user *domain.User, providerID, providerName, roleName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := tx.FirstOrCreate(&domain.Role{Name: roleName}, domain.Role{Name: roleName}).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.UserRole{UserID: user.ID, RoleName: roleName}).Error; err != nil {
			return err
		}
		return createLink(tx, user.ID, providerID, providerName)
	})
}

func createLink(tx *gorm.DB, userID, providerID, providerName string) error {
	provider := domain.AuthProvider{ProviderID: providerID, Name: providerName}
	if err := tx.FirstOrCreate(&provider, domain.AuthProvider{ProviderID: providerID}).Error; err != nil {
		return err
	}
	return tx.Create(&domain.AuthProviderUser{UserID: userID, ProviderID: providerID}).Error
}
