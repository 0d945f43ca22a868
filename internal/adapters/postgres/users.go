package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/internal/domain"
)

var ErrNotFound = gorm.ErrRecordNotFound

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// AssignRole attaches a role to the user, provisioning the role row
	// itself when first referenced.
	AssignRole(ctx context.Context, userID, roleName string) error
	// Access loads the user's effective roles and permissions as a flat
	// projection, computed once per session operation.
	Access(ctx context.Context, userID string) (roles []string, permissions []string, err error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByEmailOrPhone(ctx context.Context, email, phone string) (*domain.User, error) {
	q := r.db.WithContext(ctx)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return nil, gorm.ErrRecordNotFound
	}
	var user domain.User
	if err := q.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *userRepo) AssignRole(ctx context.Context, userID, roleName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", roleName).First(&domain.Role{}).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := tx.Create(&domain.Role{Name: roleName}).Error; err != nil {
				return err
			}
		}
		var existing domain.UserRole
		err := tx.Where("user_id = ? AND role_name = ?", userID, roleName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&domain.UserRole{UserID: userID, RoleName: roleName}).Error
	})
}

func (r *userRepo) Access(ctx context.Context, userID string) ([]string, []string, error) {
	var assignments []domain.UserRole
	if err := r.db.WithContext(ctx).
		Preload("Role.Permissions.Permission").
		Where("user_id = ?", userID).
		Find(&assignments).Error; err != nil {
		return nil, nil, err
	}
	roles := make([]string, 0, len(assignments))
	seen := map[string]bool{}
	var permissions []string
	for _, ur := range assignments {
		roles = append(roles, ur.RoleName)
		for _, rp := range ur.Role.Permissions {
			if !seen[rp.PermissionName] {
				seen[rp.PermissionName] = true
				permissions = append(permissions, rp.PermissionName)
			}
		}
	}
	return roles, permissions, nil
}
