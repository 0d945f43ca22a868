package domain

import "time"

// PasskeyCredential is a WebAuthn public-key credential bound to a user.
// Counter is the authenticator's signature counter; it must advance on every
// successful assertion, a non-increasing value is treated as a cloned
// authenticator.
type PasskeyCredential struct {
	ID           string     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       string     `gorm:"type:uuid;index;not null" json:"user_id"`
	CredentialID string     `gorm:"uniqueIndex;not null" json:"credential_id"`
	PublicKey    string     `gorm:"not null" json:"-"`
	Counter      uint32     `gorm:"not null;default:0" json:"counter"`
	DeviceName   string     `gorm:"not null;default:'Unknown Device'" json:"device_name"`
	BackedUp     bool       `gorm:"not null;default:false" json:"backed_up"`
	Transports   []string   `gorm:"type:jsonb;serializer:json" json:"transports"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (PasskeyCredential) TableName() string { return "auth_passkey_credential" }
