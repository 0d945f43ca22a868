package domain

import "time"

type ChainType string

const (
	ChainEthereum ChainType = "ETHEREUM"
	ChainBitcoin  ChainType = "BITCOIN"
	ChainPolygon  ChainType = "POLYGON"
	ChainBSC      ChainType = "BSC"
)

// WalletAccount links a user to a blockchain address. Address uniqueness is
// enforced store-side across all users; one primary wallet per chain type
// per user.
type WalletAccount struct {
	ID         string                 `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     string                 `gorm:"type:uuid;index;not null" json:"user_id"`
	Address    string                 `gorm:"uniqueIndex;not null" json:"address"`
	Type       ChainType              `gorm:"type:text;not null;default:'ETHEREUM'" json:"type"`
	IsVerified bool                   `gorm:"not null;default:false" json:"is_verified"`
	IsPrimary  bool                   `gorm:"not null;default:false" json:"is_primary"`
	Metadata   map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"metadata"`
	CreatedAt  time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string { return "auth_wallet_account" }
