package services

import (
	"context"
	"fmt"

	"vibefi/internal/models"
	"vibefi/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlaceAudienceVote appends caller's stake to the ledger during phase 1.
// declared is the stake the caller names; transferred is the value that
// actually accompanied the call. depositRef identifies the transfer that
// funded it and is checked by the payer; a reference backs one stake only.
func (s *SessionService) PlaceAudienceVote(
	ctx context.Context,
	sessionID string,
	caller string,
	voteType models.VoteType,
	declared decimal.Decimal,
	transferred decimal.Decimal,
	depositRef string,
) (*models.SessionVote, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: missing caller", models.ErrUnauthorized)
	}

	var vote *models.SessionVote
	_, err := s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if session.Phase != models.SessionPhasePhase1Voting {
			return fmt.Errorf("%w: voting requires %s, session is %s",
				models.ErrInvalidPhase, models.SessionPhasePhase1Voting, session.Phase)
		}
		if !rec.now.Before(*session.Phase1EndTime) {
			return fmt.Errorf("%w: audience voting closed at %s",
				models.ErrInvalidPhase, session.Phase1EndTime.Format("15:04:05"))
		}
		if session.IsPlayer(caller) {
			return fmt.Errorf("%w: players cannot place audience votes", models.ErrUnauthorized)
		}
		if !voteType.Valid() {
			return fmt.Errorf("%w: %q", models.ErrInvalidVoteType, voteType)
		}

		existing, err := tx.GetVote(ctx, session.ID, caller)
		if err != nil {
			return fmt.Errorf("failed to get vote: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s already staked in this session", models.ErrAlreadyVoted, caller)
		}

		amount, err := s.stakeAmount(voteType, declared, transferred)
		if err != nil {
			return err
		}

		count, err := tx.CountVotes(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to count votes: %w", err)
		}

		vote = &models.SessionVote{
			SessionID: session.ID,
			Seq:       int(count),
			Voter:     caller,
			VoteType:  voteType,
			Amount:    models.NewBaseUnits(amount),
			Payout:    models.NewBaseUnits(decimal.Zero),
			CreatedAt: rec.now,
		}
		if err := tx.InsertVote(ctx, vote); err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}

		session.TotalPool = models.NewBaseUnits(session.TotalPool.Add(amount))

		deposit, err := s.verifyDeposit(ctx, tx, rec, caller, amount, depositRef)
		if err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, deposit); err != nil {
			return fmt.Errorf("failed to record deposit: %w", err)
		}

		rec.afterCommit(func() {
			s.logger.Info().
				Str("session_id", session.ID).
				Str("actor", caller).
				Str("vote_type", string(voteType)).
				Str("amount", amount.String()).
				Str("deposit", depositRef).
				Msg("vote placed")
		})
		return rec.emit(models.EventVotePlaced, caller, models.VotePlacedPayload{
			Voter:    caller,
			VoteType: voteType,
			Amount:   amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// verifyDeposit builds the settled DEPOSIT row for a stake after the payer
// has confirmed that depositRef moved amount from caller into the pool.
func (s *SessionService) verifyDeposit(
	ctx context.Context,
	tx *repository.Repository,
	rec *recorder,
	caller string,
	amount decimal.Decimal,
	depositRef string,
) (*models.SessionTransaction, error) {
	deposit := &models.SessionTransaction{
		ID:        uuid.New(),
		SessionID: rec.session.ID,
		Address:   caller,
		Type:      models.TransactionTypeDeposit,
		Amount:    models.NewBaseUnits(amount),
		Status:    models.TransactionStatusSettled,
		CreatedAt: rec.now,
		SettledAt: timePtr(rec.now),
	}
	if depositRef != "" {
		used, err := tx.TransactionReferenceExists(ctx, depositRef)
		if err != nil {
			return nil, fmt.Errorf("failed to check deposit reference: %w", err)
		}
		if used {
			return nil, fmt.Errorf("%w: deposit %s already backs a stake", models.ErrInvalidDeposit, depositRef)
		}
		deposit.Reference = &depositRef
	}
	if err := s.payer.VerifyDeposit(ctx, deposit); err != nil {
		return nil, fmt.Errorf("failed to verify deposit: %w", err)
	}
	return deposit, nil
}

// stakeAmount applies the amount rules. NEUTRAL always stakes the fixed
// neutral amount; every other type stakes exactly what was declared.
func (s *SessionService) stakeAmount(voteType models.VoteType, declared, transferred decimal.Decimal) (decimal.Decimal, error) {
	if transferred.IsNegative() || !transferred.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: transferred value %s is not a whole non-negative amount",
			models.ErrInvalidStake, transferred)
	}

	if voteType == models.VoteTypeNeutral {
		if !transferred.Equal(s.cfg.NeutralStake) {
			return decimal.Zero, fmt.Errorf("%w: neutral stake is %s, got %s",
				models.ErrAmountMismatch, s.cfg.NeutralStake, transferred)
		}
		return s.cfg.NeutralStake, nil
	}

	if !declared.IsPositive() || !declared.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: stake must be a positive whole amount, got %s",
			models.ErrInvalidStake, declared)
	}
	if !declared.Equal(transferred) {
		return decimal.Zero, fmt.Errorf("%w: declared %s, transferred %s",
			models.ErrAmountMismatch, declared, transferred)
	}
	return declared, nil
}

// MoveToPhase2 closes audience voting once its deadline has passed. Any
// caller may trigger it.
func (s *SessionService) MoveToPhase2(ctx context.Context, sessionID string, caller string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if session.Phase != models.SessionPhasePhase1Voting {
			return fmt.Errorf("%w: cannot advance, session is %s", models.ErrInvalidPhase, session.Phase)
		}
		if rec.now.Before(*session.Phase1EndTime) {
			return fmt.Errorf("%w: audience voting ends at %s",
				models.ErrTooEarly, session.Phase1EndTime.Format("15:04:05"))
		}
		return s.advanceToPhase2(rec, caller)
	})
}

func (s *SessionService) advanceToPhase2(rec *recorder, caller string) error {
	rec.session.Phase = models.SessionPhasePhase2PlayerVoting
	sessionID := rec.session.ID
	rec.afterCommit(func() {
		s.logger.Info().Str("session_id", sessionID).Str("actor", caller).Msg("moved to phase 2")
	})
	return rec.emit(models.EventPhaseAdvanced, caller, models.PhaseAdvancedPayload{
		Phase: models.SessionPhasePhase2PlayerVoting,
		Actor: caller,
	})
}

// PlayerVote records a player's yes/no answer during phase 2.
func (s *SessionService) PlayerVote(ctx context.Context, sessionID string, caller string, voteYes bool) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if session.Phase != models.SessionPhasePhase2PlayerVoting {
			return fmt.Errorf("%w: player voting requires %s, session is %s",
				models.ErrInvalidPhase, models.SessionPhasePhase2PlayerVoting, session.Phase)
		}
		if !rec.now.Before(*session.Phase2EndTime) {
			return fmt.Errorf("%w: player voting closed at %s",
				models.ErrInvalidPhase, session.Phase2EndTime.Format("15:04:05"))
		}

		switch {
		case caller != "" && caller == session.Player1:
			if session.Player1Voted {
				return fmt.Errorf("%w: player1 already voted", models.ErrAlreadyVoted)
			}
			session.Player1Vote = voteYes
			session.Player1Voted = true
		case caller != "" && caller == session.Player2:
			if session.Player2Voted {
				return fmt.Errorf("%w: player2 already voted", models.ErrAlreadyVoted)
			}
			session.Player2Vote = voteYes
			session.Player2Voted = true
		default:
			return fmt.Errorf("%w: only players can vote in phase 2", models.ErrUnauthorized)
		}

		rec.afterCommit(func() {
			s.logger.Info().Str("session_id", session.ID).Str("actor", caller).Bool("vote_yes", voteYes).Msg("player voted")
		})
		return rec.emit(models.EventPlayerVoted, caller, models.PlayerVotedPayload{
			Player:  caller,
			VoteYes: voteYes,
		})
	})
}
