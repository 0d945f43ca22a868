package domain

import "time"

type OtpPurpose string

const (
	OtpLogin             OtpPurpose = "LOGIN"
	OtpRegister          OtpPurpose = "REGISTER"
	OtpPhoneVerification OtpPurpose = "PHONE_VERIFICATION"
	OtpEmailVerification OtpPurpose = "EMAIL_VERIFICATION"
	OtpPasswordReset     OtpPurpose = "PASSWORD_RESET"
	OtpTwoFactor         OtpPurpose = "TWO_FACTOR"
)

// OtpToken holds one short-lived code per (identifier, purpose) pair. The
// same table also stores WebAuthn challenges under the TWO_FACTOR purpose,
// with the challenge string in Token.
type OtpToken struct {
	ID          string     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      *string    `gorm:"type:uuid;index" json:"user_id"`
	Identifier  string     `gorm:"index:idx_otp_identifier_purpose;not null" json:"identifier"`
	Token       string     `gorm:"not null" json:"-"`
	Purpose     OtpPurpose `gorm:"column:type;index:idx_otp_identifier_purpose;not null" json:"type"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"not null;default:5" json:"max_attempts"`
	IsUsed      bool       `gorm:"not null;default:false" json:"is_used"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (OtpToken) TableName() string { return "auth_otp_token" }

// Active reports whether the token can still be consumed at the given time.
func (t *OtpToken) Active(now time.Time) bool {
	return !t.IsUsed && t.Attempts < t.MaxAttempts && now.Before(t.ExpiresAt)
}
