package services

import (
	"context"
	"fmt"
	"time"

	"vibefi/internal/models"

	"github.com/shopspring/decimal"
)

const maxEventPage = 500

// GetSession returns the session with its participants in join order.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	addresses := make([]string, 0, len(participants))
	for _, p := range participants {
		addresses = append(addresses, p.Address)
	}
	return &models.SessionDetail{Session: session, Participants: addresses}, nil
}

// GetSessionVotes returns the ledger in insertion order.
func (s *SessionService) GetSessionVotes(ctx context.Context, sessionID string) ([]*models.SessionVote, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListVotes(ctx, sessionID)
}

// GetParticipantCount returns how many identities joined.
func (s *SessionService) GetParticipantCount(ctx context.Context, sessionID string) (int64, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	return s.repo.CountParticipants(ctx, sessionID)
}

// GetSessionTransactions returns the pool's deposits and settlements.
func (s *SessionService) GetSessionTransactions(ctx context.Context, sessionID string) ([]*models.SessionTransaction, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, sessionID)
}

// GetSessionEvents replays the notification log after afterSeq.
func (s *SessionService) GetSessionEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]*models.SessionEvent, error) {
	if _, err := s.repo.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxEventPage {
		limit = maxEventPage
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	return s.repo.ListEvents(ctx, sessionID, afterSeq, limit)
}

// GetPosition reports address's stake and what it can claim.
func (s *SessionService) GetPosition(ctx context.Context, sessionID string, address string) (*models.Position, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	vote, err := s.repo.GetVote(ctx, sessionID, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	position := &models.Position{
		SessionID: sessionID,
		Address:   address,
		Amount:    decimal.Zero,
		Payout:    decimal.Zero,
		Resolved:  session.Resolved,
	}
	if vote == nil {
		return position, nil
	}

	position.HasVote = true
	position.VoteType = vote.VoteType
	position.Amount = vote.Amount.Decimal
	position.Claimed = vote.Claimed
	if session.Resolved {
		position.Payout = vote.Payout.Decimal
		position.Claimable = !vote.Claimed && vote.Payout.IsPositive()
	}
	return position, nil
}

// StaleSessions lists sessions whose current phase deadline has passed.
func (s *SessionService) StaleSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	return s.repo.ListStaleSessions(ctx, s.clock.Now(), limit)
}

// Now returns the engine's current time.
func (s *SessionService) Now() time.Time {
	return s.clock.Now()
}
