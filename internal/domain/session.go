package domain

import "time"

type SessionType string

const (
	SessionAccess  SessionType = "ACCESS"
	SessionRefresh SessionType = "REFRESH"
)

// Session is one issued token, access or refresh. The raw token value is the
// lookup key; the store row is the source of truth, the cache entry is a
// TTL-bounded projection.
type Session struct {
	ID         string      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     string      `gorm:"type:uuid;index;not null" json:"user_id"`
	Token      string      `gorm:"uniqueIndex;not null" json:"-"`
	Type       SessionType `gorm:"type:text;not null" json:"type"`
	DeviceInfo *string     `json:"device_info"`
	IPAddress  *string     `json:"ip_address"`
	UserAgent  *string     `json:"user_agent"`
	IsActive   bool        `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt  time.Time   `gorm:"index;not null" json:"expires_at"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string { return "auth_session" }
