package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibefi/internal/models"
	"vibefi/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payer moves native value between callers and a session pool.
//
// VerifyDeposit runs inside the vote's transaction and confirms that the
// row's Reference moved Amount from Address into the pool. It must not
// write.
//
// Settle sends a PENDING payout or refund after the claim has committed and
// marks the row settled. It may be called again for the same row after a
// failure and must never pay a row twice.
type Payer interface {
	VerifyDeposit(ctx context.Context, t *models.SessionTransaction) error
	Settle(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) error
}

// LedgerPayer keeps value on the ledger only. Deposits are taken at their
// word and settlements complete immediately.
type LedgerPayer struct{}

var _ Payer = LedgerPayer{}

func (LedgerPayer) VerifyDeposit(context.Context, *models.SessionTransaction) error {
	return nil
}

func (LedgerPayer) Settle(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) error {
	return repo.MarkTransactionSettled(ctx, t.ID, time.Now().UTC())
}

// ClaimWinnings pays caller the amount fixed at resolution, at most once.
// The claim and a PENDING settlement row commit together; the transfer is
// sent afterwards. If sending fails the amount is returned with an error
// wrapping ErrSettlementPending, and a repeated claim resumes the same row.
func (s *SessionService) ClaimWinnings(ctx context.Context, sessionID string, caller string) (decimal.Decimal, error) {
	var settlement *models.SessionTransaction
	_, err := s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if !session.Resolved {
			return fmt.Errorf("%w: session is not resolved, current phase: %s", models.ErrInvalidPhase, session.Phase)
		}

		vote, err := tx.GetVote(ctx, session.ID, caller)
		if err != nil {
			return fmt.Errorf("failed to get vote: %w", err)
		}
		if vote == nil {
			return fmt.Errorf("%w: %s has no stake in this session", models.ErrNothingToClaim, caller)
		}
		if vote.Claimed {
			return fmt.Errorf("%w: %s", models.ErrAlreadyClaimed, caller)
		}
		if !vote.Payout.IsPositive() {
			return fmt.Errorf("%w: %s is not owed anything", models.ErrNothingToClaim, caller)
		}
		if session.TotalClaimed.Add(vote.Payout.Decimal).GreaterThan(session.TotalPool.Decimal) {
			return fmt.Errorf("%w: claimed %s plus %s exceeds pool %s",
				models.ErrConservationViolation, session.TotalClaimed, vote.Payout, session.TotalPool)
		}

		vote.Claimed = true
		vote.ClaimedAt = timePtr(rec.now)
		if err := tx.UpdateVote(ctx, vote); err != nil {
			return fmt.Errorf("failed to mark claim: %w", err)
		}
		session.TotalClaimed = models.NewBaseUnits(session.TotalClaimed.Add(vote.Payout.Decimal))

		txType := models.TransactionTypePayout
		if session.Refunded {
			txType = models.TransactionTypeRefund
		}
		settlement = &models.SessionTransaction{
			ID:        uuid.New(),
			SessionID: session.ID,
			Address:   caller,
			Type:      txType,
			Amount:    vote.Payout,
			Status:    models.TransactionStatusPending,
			CreatedAt: rec.now,
		}
		if err := tx.CreateTransaction(ctx, settlement); err != nil {
			return fmt.Errorf("failed to record %s: %w", txType, err)
		}

		refund := session.Refunded
		rec.afterCommit(func() {
			s.logger.Info().
				Str("session_id", session.ID).
				Str("actor", caller).
				Str("amount", vote.Payout.String()).
				Bool("refund", refund).
				Msg("winnings claimed")
		})
		return rec.emit(models.EventWinningsClaimed, caller, models.WinningsClaimedPayload{
			Claimer: caller,
			Amount:  vote.Payout.Decimal,
			Refund:  refund,
		})
	})
	if errors.Is(err, models.ErrAlreadyClaimed) {
		pending, lookupErr := s.repo.GetPendingSettlement(ctx, sessionID, caller)
		if lookupErr != nil {
			return decimal.Zero, fmt.Errorf("failed to look up pending settlement: %w", lookupErr)
		}
		if pending == nil {
			return decimal.Zero, err
		}
		settlement = pending
	} else if err != nil {
		return decimal.Zero, err
	}

	if err := s.settle(ctx, settlement); err != nil {
		return settlement.Amount.Decimal, fmt.Errorf("%w: %s of %s to %s: %w",
			models.ErrSettlementPending, settlement.Type, settlement.Amount, caller, err)
	}
	return settlement.Amount.Decimal, nil
}

// SettlePending retries up to limit unsettled payouts and refunds, oldest
// first, and returns how many were settled.
func (s *SessionService) SettlePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListPendingSettlements(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending settlements: %w", err)
	}

	settled := 0
	var errs []error
	for _, t := range pending {
		if err := s.settle(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", t.SessionID, t.ID, err))
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

// settle hands one pending row to the payer. Rows are re-read under
// settleMu so concurrent callers never send the same row twice.
func (s *SessionService) settle(ctx context.Context, t *models.SessionTransaction) error {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()

	current, err := s.repo.GetTransaction(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("failed to load settlement %s: %w", t.ID, err)
	}
	if current.Settled() {
		*t = *current
		return nil
	}

	if err := s.payer.Settle(ctx, s.repo, current); err != nil {
		s.logger.Warn().
			Err(err).
			Str("session_id", current.SessionID).
			Str("transaction_id", current.ID.String()).
			Str("address", current.Address).
			Msg("settlement failed, will retry")
		return err
	}

	s.logger.Info().
		Str("session_id", current.SessionID).
		Str("transaction_id", current.ID.String()).
		Str("type", string(current.Type)).
		Str("reference", current.Ref()).
		Msg("settlement sent")
	*t = *current
	return nil
}
