package domain

import "time"

type AuthProvider struct {
	ProviderID  string    `gorm:"primaryKey" json:"provider_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AuthProvider) TableName() string { return "auth_provider" }

// AuthProviderUser joins a federated identity to a local user; one link per
// external provider id.
type AuthProviderUser struct {
	ID         string    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProviderID string    `gorm:"uniqueIndex;not null" json:"provider_id"`
	UserID     string    `gorm:"type:uuid;index;not null" json:"user_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`

	Provider AuthProvider `gorm:"foreignKey:ProviderID;references:ProviderID" json:"-"`
}

func (AuthProviderUser) TableName() string { return "auth_provider_user" }
