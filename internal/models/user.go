package models

import (
	"time"
)

type WalletChain string

const (
	WalletChainEVM    WalletChain = "evm"
	WalletChainSolana WalletChain = "solana"
)

// User represents a wallet that has logged in
type User struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	WalletAddress string      `gorm:"uniqueIndex;size:100;not null" json:"wallet_address"`
	Chain         WalletChain `gorm:"size:16;not null" json:"chain"`
	Nickname      string      `gorm:"uniqueIndex;size:64;not null" json:"nickname"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// WalletLoginRequest is the body of POST /auth/wallet.
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Chain         string `json:"chain"`
	Signature     string `json:"signature" binding:"required"`
}

// LoginChallenge is the single outstanding login nonce for a wallet. A new
// challenge replaces the previous one; a successful login deletes it.
type LoginChallenge struct {
	Address   string      `gorm:"primaryKey;size:100" json:"address"`
	Chain     WalletChain `gorm:"size:16;not null" json:"chain"`
	Nonce     string      `gorm:"size:64;not null" json:"nonce"`
	ExpiresAt time.Time   `gorm:"not null" json:"expires_at"`
}

func (LoginChallenge) TableName() string {
	return "login_challenges"
}
