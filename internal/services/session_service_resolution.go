package services

import (
	"context"
	"fmt"

	"vibefi/internal/models"
	"vibefi/internal/repository"
)

// ResolveSession fixes the outcome and every voter's payout. It is open to
// any caller once both players voted or the phase 2 deadline has passed;
// missing player votes count as no.
func (s *SessionService) ResolveSession(ctx context.Context, sessionID string, caller string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		deadlinePassed := session.Phase2EndTime != nil && !rec.now.Before(*session.Phase2EndTime)

		switch session.Phase {
		case models.SessionPhasePhase2PlayerVoting:
			if !session.BothPlayersVoted() && !deadlinePassed {
				return fmt.Errorf("%w: waiting for player votes until %s",
					models.ErrTooEarly, session.Phase2EndTime.Format("15:04:05"))
			}
		case models.SessionPhasePhase1Voting:
			if !deadlinePassed {
				return fmt.Errorf("%w: session is still in %s", models.ErrTooEarly, session.Phase)
			}
			if err := s.advanceToPhase2(rec, caller); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: cannot resolve, session is %s", models.ErrInvalidPhase, session.Phase)
		}

		forced := !session.BothPlayersVoted()
		resultYes := session.Player1Vote && session.Player2Vote

		votes, err := tx.ListVotes(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to list votes: %w", err)
		}

		outcome := ComputePayouts(votes, resultYes, session.TotalPool.Decimal)
		if outcome.Total().GreaterThan(session.TotalPool.Decimal) {
			return fmt.Errorf("%w: payouts %s exceed pool %s",
				models.ErrConservationViolation, outcome.Total(), session.TotalPool)
		}

		for i, vote := range votes {
			vote.Payout = models.NewBaseUnits(outcome.Payouts[i])
			if err := tx.UpdateVote(ctx, vote); err != nil {
				return fmt.Errorf("failed to store payout for %s: %w", vote.Voter, err)
			}
		}

		session.ResultYes = resultYes
		session.Resolved = true
		session.Refunded = outcome.Refunded
		session.Residual = models.NewBaseUnits(outcome.Residual)
		session.Phase = models.SessionPhaseResolved
		session.ResolvedAt = timePtr(rec.now)

		rec.afterCommit(func() {
			s.logger.Info().
				Str("session_id", session.ID).
				Str("actor", caller).
				Bool("result_yes", resultYes).
				Bool("forced", forced).
				Bool("refunded", outcome.Refunded).
				Int("winners", outcome.WinnerCount).
				Str("total_pool", session.TotalPool.String()).
				Msg("session resolved")
		})
		return rec.emit(models.EventSessionResolved, caller, models.SessionResolvedPayload{
			Player1Vote: session.Player1Vote,
			Player2Vote: session.Player2Vote,
			ResultYes:   resultYes,
			Forced:      forced,
			Refunded:    outcome.Refunded,
			TotalPool:   session.TotalPool.Decimal,
			Residual:    outcome.Residual,
		})
	})
}
