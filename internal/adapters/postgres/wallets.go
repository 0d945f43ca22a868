package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

type WalletRepository interface {
	FindByAddress(ctx context.Context, address string) (*domain.WalletAccount, error)
	FindForUser(ctx context.Context, userID, walletID string) (*domain.WalletAccount, error)
	FindPrimary(ctx context.Context, userID string, typ domain.ChainType) (*domain.WalletAccount, error)
	ListByUser(ctx context.Context, userID string) ([]domain.WalletAccount, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	Upsert(ctx context.Context, wallet *domain.WalletAccount) error
	Delete(ctx context.Context, id string) error
	// CreateUserWithWallet registers a brand-new user together with their
	// first verified wallet and default role in one transaction.
	CreateUserWithWallet(ctx context.Context, user *domain.User, wallet *domain.WalletAccount, roleName string) error
	// SwapPrimary clears any primary flag of the wallet's chain type for the
	// user and sets the given wallet primary, all-or-nothing.
	SwapPrimary(ctx context.Context, userID, walletID string, typ domain.ChainType) error
}

type walletRepo struct{ db *gorm.DB }

func NewWalletRepository(db *gorm.DB) WalletRepository { return &walletRepo{db: db} }

func (r *walletRepo) FindByAddress(ctx context.Context, address string) (*domain.WalletAccount, error) {
	var wallet domain.WalletAccount
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepo) FindForUser(ctx context.Context, userID, walletID string) (*domain.WalletAccount, error) {
	var wallet domain.WalletAccount
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", walletID, userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepo) FindPrimary(ctx context.Context, userID string, typ domain.ChainType) (*domain.WalletAccount, error) {
	var wallet domain.WalletAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND is_primary = ?", userID, typ, true).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepo) ListByUser(ctx context.Context, userID string) ([]domain.WalletAccount, error) {
	var wallets []domain.WalletAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC, created_at DESC").
		Find(&wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *walletRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.WalletAccount{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *walletRepo) Upsert(ctx context.Context, wallet *domain.WalletAccount) error {
	var existing domain.WalletAccount
	err := r.db.WithContext(ctx).Where("address = ?", wallet.Address).First(&existing).Error
	if err == nil {
		wallet.ID = existing.ID
		wallet.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(wallet).Error
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *walletRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.WalletAccount{}).Error
}

func (r *walletRepo) CreateUserWithWallet(ctx context.Context, user *domain.User, wallet *domain.WalletAccount, roleName string) error {
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
		wallet.UserID = user.ID
		return tx.Create(wallet).Error
	})
}

func (r *walletRepo) SwapPrimary(ctx context.Context, userID, walletID string, typ domain.ChainType) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.WalletAccount{}).
			Where("user_id = ? AND type = ? AND is_primary = ?", userID, typ, true).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&domain.WalletAccount{}).
			Where("id = ? AND user_id = ?", walletID, userID).
			Update("is_primary", true).Error
	})
}
