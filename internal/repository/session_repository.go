package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibefi/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn against a repository bound to a single database
// transaction. fn must only use the repository it is given.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// CreateSession inserts a new session row
func (r *Repository) CreateSession(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSession retrieves a session by its identifier
func (r *Repository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionExists reports whether a session with the identifier is stored
func (r *Repository) SessionExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateSession saves every column of the session
func (r *Repository) UpdateSession(ctx context.Context, session *models.Session) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// ListStaleSessions finds sessions whose current phase deadline has passed
// and that a permissionless caller can therefore advance or resolve.
func (r *Repository) ListStaleSessions(ctx context.Context, now time.Time, limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	err := r.db.WithContext(ctx).
		Where("(phase = ? AND phase1_end_time <= ?) OR (phase = ? AND phase2_end_time <= ?)",
			models.SessionPhasePhase1Voting, now,
			models.SessionPhasePhase2PlayerVoting, now).
		Order("phase1_end_time ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// AddParticipant records a join
func (r *Repository) AddParticipant(ctx context.Context, participant *models.SessionParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

// ListParticipants returns participants in join order
func (r *Repository) ListParticipants(ctx context.Context, sessionID string) ([]*models.SessionParticipant, error) {
	var participants []*models.SessionParticipant
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("join_index ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// CountParticipants returns how many identities joined the session
func (r *Repository) CountParticipants(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionParticipant{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// IsParticipant reports whether address already joined the session
func (r *Repository) IsParticipant(ctx context.Context, sessionID string, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionParticipant{}).
		Where("session_id = ? AND address = ?", sessionID, address).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetVote returns the voter's ledger entry, or nil if there is none
func (r *Repository) GetVote(ctx context.Context, sessionID string, voter string) (*models.SessionVote, error) {
	var vote models.SessionVote
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND voter = ?", sessionID, voter).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// InsertVote appends a ledger entry
func (r *Repository) InsertVote(ctx context.Context, vote *models.SessionVote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// CountVotes returns the ledger length
func (r *Repository) CountVotes(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionVote{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// ListVotes returns the ledger in insertion order
func (r *Repository) ListVotes(ctx context.Context, sessionID string) ([]*models.SessionVote, error) {
	var votes []*models.SessionVote
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// UpdateVote saves a ledger entry's payout and claim columns
func (r *Repository) UpdateVote(ctx context.Context, vote *models.SessionVote) error {
	return r.db.WithContext(ctx).
		Model(vote).
		Select("payout", "claimed", "claimed_at").
		Updates(vote).Error
}

// CreateTransaction records a pool deposit, payout or refund at the next
// per-session sequence number
func (r *Repository) CreateTransaction(ctx context.Context, tx *models.SessionTransaction) error {
	var last int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionTransaction{}).
		Where("session_id = ?", tx.SessionID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}
	tx.Seq = last + 1
	return r.db.WithContext(ctx).Create(tx).Error
}

// ListTransactions returns a session's fund movements in the order they
// were recorded
func (r *Repository) ListTransactions(ctx context.Context, sessionID string) ([]*models.SessionTransaction, error) {
	var transactions []*models.SessionTransaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// GetTransaction retrieves one fund movement by id
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*models.SessionTransaction, error) {
	var transaction models.SessionTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// TransactionReferenceExists reports whether a settlement reference has
// already been recorded in any session
func (r *Repository) TransactionReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionTransaction{}).
		Where("reference = ?", reference).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetPendingSettlement returns the address's unsettled outgoing transfer in
// the session, or nil if there is none
func (r *Repository) GetPendingSettlement(ctx context.Context, sessionID string, address string) (*models.SessionTransaction, error) {
	var transaction models.SessionTransaction
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND address = ? AND status = ?", sessionID, address, models.TransactionStatusPending).
		First(&transaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// ListPendingSettlements returns unsettled outgoing transfers, oldest first
func (r *Repository) ListPendingSettlements(ctx context.Context, limit int) ([]*models.SessionTransaction, error) {
	var transactions []*models.SessionTransaction
	err := r.db.WithContext(ctx).
		Where("status = ?", models.TransactionStatusPending).
		Order("created_at ASC").
		Order("session_id ASC").
		Order("seq ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// RecordSettlementAttempt stores the reference of a transfer about to be
// sent together with the chain height after which it can no longer land
func (r *Repository) RecordSettlementAttempt(ctx context.Context, id uuid.UUID, reference string, expiry uint64) error {
	res := r.db.WithContext(ctx).
		Model(&models.SessionTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]any{"reference": reference, "reference_expiry": expiry})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("transaction %s is not pending", id)
	}
	return nil
}

// MarkTransactionSettled flips a pending transfer to settled. Settling an
// already settled row is a no-op.
func (r *Repository) MarkTransactionSettled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SessionTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]any{"status": models.TransactionStatusSettled, "settled_at": at}).Error
}

// AppendEvent writes one entry to the session's notification log
func (r *Repository) AppendEvent(ctx context.Context, event *models.SessionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListEvents returns events with seq greater than afterSeq, in order
func (r *Repository) ListEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*models.SessionEvent, error) {
	var events []*models.SessionEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND seq > ?", sessionID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
