package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	TransactionTypePayout  TransactionType = "PAYOUT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	// TransactionStatusPending marks an outgoing transfer committed to the
	// ledger but not yet confirmed by the payer.
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSettled TransactionStatus = "SETTLED"
)

// SessionTransaction records a movement of native value into or out of a
// session pool. Seq orders rows within a session. Reference is the
// settlement id, such as a chain signature, and is unique across sessions
// so one deposit can never back two stakes.
type SessionTransaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID       string            `gorm:"size:66;not null;index;uniqueIndex:idx_transaction_session_seq" json:"session_id"`
	Seq             int64             `gorm:"not null;uniqueIndex:idx_transaction_session_seq" json:"seq"`
	Address         string            `gorm:"size:100;not null;index" json:"address"`
	Type            TransactionType   `gorm:"size:16;not null" json:"type"`
	Amount          BaseUnits         `gorm:"not null" json:"amount"`
	Status          TransactionStatus `gorm:"size:16;not null;default:SETTLED;index" json:"status"`
	Reference       *string           `gorm:"size:128;uniqueIndex" json:"reference,omitempty"`
	ReferenceExpiry uint64            `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	SettledAt       *time.Time        `json:"settled_at,omitempty"`
}

func (SessionTransaction) TableName() string {
	return "session_transactions"
}

// Settled reports whether the payer has confirmed the transfer.
func (t *SessionTransaction) Settled() bool {
	return t.Status == TransactionStatusSettled
}

// Ref returns the settlement reference or "" when none was recorded.
func (t *SessionTransaction) Ref() string {
	if t.Reference == nil {
		return ""
	}
	return *t.Reference
}
