package domain

import "time"

type User struct {
	ID              string     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email           *string    `gorm:"uniqueIndex" json:"email"`
	Phone           *string    `gorm:"uniqueIndex" json:"phone"`
	PasswordHash    *string    `json:"-"`
	FullName        string     `gorm:"not null" json:"full_name"`
	Picture         *string    `json:"picture"`
	IsEmailVerified bool       `gorm:"not null;default:false" json:"is_email_verified"`
	IsPhoneVerified bool       `gorm:"not null;default:false" json:"is_phone_verified"`
	LastLoginAt     *time.Time `json:"last_login_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Roles       []UserRole          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Wallets     []WalletAccount     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Passkeys    []PasskeyCredential `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Providers   []AuthProviderUser  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Sessions    []Session           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "auth_user" }

// HasPassword reports whether the user can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

type Role struct {
	Name        string    `gorm:"primaryKey" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	Permissions []RolePermission `gorm:"foreignKey:RoleName;constraint:OnDelete:CASCADE" json:"-"`
}

func (Role) TableName() string { return "auth_role" }

type Permission struct {
	Name        string    `gorm:"primaryKey" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Permission) TableName() string { return "auth_permission" }

type UserRole struct {
	ID        string    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;uniqueIndex:idx_user_role;not null" json:"user_id"`
	RoleName  string    `gorm:"uniqueIndex:idx_user_role;not null" json:"role_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Role Role `gorm:"foreignKey:RoleName;references:Name" json:"-"`
}

func (UserRole) TableName() string { return "auth_user_role" }

type RolePermission struct {
	ID             string    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RoleName       string    `gorm:"uniqueIndex:idx_role_permission;not null" json:"role_name"`
	PermissionName string    `gorm:"uniqueIndex:idx_role_permission;not null" json:"permission_name"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	Permission Permission `gorm:"foreignKey:PermissionName;references:Name" json:"-"`
}

func (RolePermission) TableName() string { return "auth_role_permission" }
