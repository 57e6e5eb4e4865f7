package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"vibefi/internal/models"
	"vibefi/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)

	assert.Len(t, session.ID, 66)
	assert.Equal(t, "0x", session.ID[:2])
	assert.Equal(t, creator, session.Creator)
	assert.Equal(t, models.SessionPhaseOpen, session.Phase)
	assert.True(t, session.TotalPool.IsZero())
	assert.Equal(t, env.clock.Now(), session.CreatedAt)

	other, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, other.ID)

	assert.Equal(t, []models.SessionEventType{models.EventSessionCreated, models.EventSessionCreated}, env.pub.types())
}

type fixedIDGenerator struct{ id string }

func (g fixedIDGenerator) NewID(string, time.Time) (string, error) { return g.id, nil }

func TestCreateSession_IdentifierCollision(t *testing.T) {
	env := newTestEnv(t, WithIDGenerator(fixedIDGenerator{id: "0x" + strings.Repeat("ab", 32)}))
	ctx := context.Background()

	_, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)

	_, err = env.svc.CreateSession(ctx, alice)
	require.ErrorIs(t, err, models.ErrIdentifierCollision)
}

func TestScenarioA_StartSelectsFirstTwoJoiners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	for _, who := range []string{alice, bob, carol} {
		_, err := env.svc.JoinSession(ctx, session.ID, who)
		require.NoError(t, err)
	}

	started, err := env.svc.StartSession(ctx, session.ID, creator)
	require.NoError(t, err)

	now := env.clock.Now()
	assert.Equal(t, models.SessionPhasePhase1Voting, started.Phase)
	assert.Equal(t, alice, started.Player1)
	assert.Equal(t, bob, started.Player2)
	assert.True(t, started.Phase1StartTime.Equal(now))
	assert.True(t, started.Phase1EndTime.Equal(now.Add(4*time.Minute)))
	assert.True(t, started.Phase2EndTime.Equal(now.Add(5*time.Minute)))

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob, carol}, detail.Participants)
	assert.Equal(t, alice, detail.Player1)

	count, err := env.svc.GetParticipantCount(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestJoinSession_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)

	_, err = env.svc.JoinSession(ctx, session.ID, alice)
	require.NoError(t, err)

	_, err = env.svc.JoinSession(ctx, session.ID, alice)
	require.ErrorIs(t, err, models.ErrAlreadyJoined)

	_, err = env.svc.JoinSession(ctx, "0x"+strings.Repeat("ff", 32), alice)
	require.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = env.svc.JoinSession(ctx, session.ID, bob)
	require.NoError(t, err)
	_, err = env.svc.StartSession(ctx, session.ID, creator)
	require.NoError(t, err)

	_, err = env.svc.JoinSession(ctx, session.ID, carol)
	require.ErrorIs(t, err, models.ErrInvalidPhase)
}

func TestStartSession_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.svc.JoinSession(ctx, session.ID, alice)
	require.NoError(t, err)

	_, err = env.svc.StartSession(ctx, session.ID, alice)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = env.svc.StartSession(ctx, session.ID, creator)
	require.ErrorIs(t, err, models.ErrInsufficientParticipants)

	_, err = env.svc.JoinSession(ctx, session.ID, bob)
	require.NoError(t, err)
	_, err = env.svc.StartSession(ctx, session.ID, creator)
	require.NoError(t, err)

	_, err = env.svc.StartSession(ctx, session.ID, creator)
	require.ErrorIs(t, err, models.ErrInvalidPhase)
}

func TestScenarioB_WeightedPayoutAndClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.vote(t, session.ID, carol, models.VoteTypeYes, ether(1))
	env.vote(t, session.ID, dave, models.VoteTypeSuperYes, ether(1))
	env.vote(t, session.ID, erin, models.VoteTypeNo, ether(2))

	env.toPhase2(t, session.ID)
	_, err := env.svc.PlayerVote(ctx, session.ID, alice, true)
	require.NoError(t, err)
	_, err = env.svc.PlayerVote(ctx, session.ID, bob, true)
	require.NoError(t, err)

	resolved, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.True(t, resolved.ResultYes)
	assert.False(t, resolved.Refunded)
	assert.Equal(t, models.SessionPhaseResolved, resolved.Phase)
	requireDec(t, "4000000000000000000", resolved.TotalPool)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.NoError(t, err)
	requireDec(t, "1860465116279069767", paid)

	paid, err = env.svc.ClaimWinnings(ctx, session.ID, dave)
	require.NoError(t, err)
	requireDec(t, "2139534883720930233", paid)

	_, err = env.svc.ClaimWinnings(ctx, session.ID, erin)
	require.ErrorIs(t, err, models.ErrNothingToClaim)

	final, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	requireDec(t, "4000000000000000000", final.TotalClaimed)

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	var deposits, payouts int
	for _, tx := range transactions {
		switch tx.Type {
		case models.TransactionTypeDeposit:
			deposits++
		case models.TransactionTypePayout:
			payouts++
		}
	}
	assert.Equal(t, 3, deposits)
	assert.Equal(t, 2, payouts)
}

func TestScenarioC_ForcedResolutionDefaultsToNo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.vote(t, session.ID, carol, models.VoteTypeYes, ether(1))
	env.vote(t, session.ID, dave, models.VoteTypeNo, ether(1))
	env.toPhase2(t, session.ID)

	_, err := env.svc.PlayerVote(ctx, session.ID, alice, true)
	require.NoError(t, err)

	_, err = env.svc.ResolveSession(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrTooEarly)

	env.clock.Advance(env.svc.Config().Phase2Duration)

	_, err = env.svc.PlayerVote(ctx, session.ID, bob, true)
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	resolved, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.False(t, resolved.ResultYes)
	assert.True(t, resolved.Player1Vote)
	assert.False(t, resolved.Player2Voted)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, dave)
	require.NoError(t, err)
	requireDec(t, "2000000000000000000", paid)

	evts, err := env.svc.GetSessionEvents(ctx, session.ID, 0, 0)
	require.NoError(t, err)
	var payload models.SessionResolvedPayload
	for _, e := range evts {
		if e.Type == models.EventSessionResolved {
			require.NoError(t, json.Unmarshal(e.Payload, &payload))
		}
	}
	assert.True(t, payload.Forced)
	assert.False(t, payload.ResultYes)
}

func TestScenarioD_SecondVoteRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.vote(t, session.ID, carol, models.VoteTypeYes, ether(1))

	_, err := env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeNo, ether(3), ether(3), "")
	require.ErrorIs(t, err, models.ErrAlreadyVoted)

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	requireDec(t, "1000000000000000000", detail.TotalPool)

	votes, err := env.svc.GetSessionVotes(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteTypeYes, votes[0].VoteType)
}

func TestPlaceAudienceVote_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	open, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.svc.PlaceAudienceVote(ctx, open.ID, carol, models.VoteTypeYes, ether(1), ether(1), "")
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	session := env.startedSession(t)

	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, alice, models.VoteTypeYes, ether(1), ether(1), "")
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteType("MAYBE"), ether(1), ether(1), "")
	require.ErrorIs(t, err, models.ErrInvalidVoteType)

	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeYes, decimal.Zero, decimal.Zero, "")
	require.ErrorIs(t, err, models.ErrInvalidStake)

	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeYes, ether(2), ether(1), "")
	require.ErrorIs(t, err, models.ErrAmountMismatch)

	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeNeutral, ether(5), ether(1), "")
	require.ErrorIs(t, err, models.ErrAmountMismatch)

	vote, err := env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeNeutral, ether(5), decimal.New(1, 15), "")
	require.NoError(t, err)
	requireDec(t, "1000000000000000", vote.Amount)

	env.clock.Advance(4 * time.Minute)
	_, err = env.svc.PlaceAudienceVote(ctx, session.ID, dave, models.VoteTypeYes, ether(1), ether(1), "")
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	requireDec(t, "1000000000000000", detail.TotalPool)
}

func TestMoveToPhase2_DeadlineGating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.clock.Advance(4*time.Minute - time.Second)
	_, err := env.svc.MoveToPhase2(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrTooEarly)

	_, err = env.svc.PlayerVote(ctx, session.ID, alice, true)
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	env.clock.Advance(time.Second)
	moved, err := env.svc.MoveToPhase2(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPhasePhase2PlayerVoting, moved.Phase)

	_, err = env.svc.MoveToPhase2(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrInvalidPhase)
}

func TestPlayerVote_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)
	env.toPhase2(t, session.ID)

	_, err := env.svc.PlayerVote(ctx, session.ID, carol, true)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = env.svc.PlayerVote(ctx, session.ID, bob, false)
	require.NoError(t, err)

	_, err = env.svc.PlayerVote(ctx, session.ID, bob, true)
	require.ErrorIs(t, err, models.ErrAlreadyVoted)

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, detail.Player2Voted)
	assert.False(t, detail.Player2Vote)
	assert.False(t, detail.Player1Voted)
}

func TestResolveSession_EarlyWhenBothPlayersVoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)
	env.toPhase2(t, session.ID)

	_, err := env.svc.PlayerVote(ctx, session.ID, alice, true)
	require.NoError(t, err)
	_, err = env.svc.PlayerVote(ctx, session.ID, bob, false)
	require.NoError(t, err)

	resolved, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.False(t, resolved.ResultYes)
	assert.False(t, resolved.Refunded)

	_, err = env.svc.ResolveSession(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrInvalidPhase)
}

func TestResolveSession_FromPhase1AfterBothDeadlines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)
	env.vote(t, session.ID, carol, models.VoteTypeNo, ether(1))

	env.clock.Advance(4 * time.Minute)
	_, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrTooEarly)

	env.clock.Advance(time.Minute)
	resolved, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPhaseResolved, resolved.Phase)
	assert.False(t, resolved.ResultYes)

	open, err := env.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	_, err = env.svc.ResolveSession(ctx, open.ID, stranger)
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	types := env.pub.types()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Contains(t, types, models.EventPhaseAdvanced)
}

func TestResolveSession_NoWinnersRefunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.vote(t, session.ID, carol, models.VoteTypeYes, ether(2))
	_, err := env.svc.PlaceAudienceVote(ctx, session.ID, dave, models.VoteTypeNeutral, decimal.Zero, decimal.New(1, 15), "")
	require.NoError(t, err)

	env.toPhase2(t, session.ID)
	env.clock.Advance(time.Minute)

	resolved, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)
	assert.True(t, resolved.Refunded)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.NoError(t, err)
	requireDec(t, "2000000000000000000", paid)

	paid, err = env.svc.ClaimWinnings(ctx, session.ID, dave)
	require.NoError(t, err)
	requireDec(t, "1000000000000000", paid)

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	refunds := 0
	for _, tx := range transactions {
		if tx.Type == models.TransactionTypeRefund {
			refunds++
		}
	}
	assert.Equal(t, 2, refunds)
}

func TestClaimWinnings_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	env.vote(t, session.ID, carol, models.VoteTypeNo, ether(1))
	env.vote(t, session.ID, dave, models.VoteTypeYes, ether(1))

	_, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.ErrorIs(t, err, models.ErrInvalidPhase)

	env.toPhase2(t, session.ID)
	env.clock.Advance(time.Minute)
	_, err = env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.NoError(t, err)
	requireDec(t, "2000000000000000000", paid)

	_, err = env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.ErrorIs(t, err, models.ErrAlreadyClaimed)

	_, err = env.svc.ClaimWinnings(ctx, session.ID, stranger)
	require.ErrorIs(t, err, models.ErrNothingToClaim)

	position, err := env.svc.GetPosition(ctx, session.ID, carol)
	require.NoError(t, err)
	assert.True(t, position.Claimed)
	assert.False(t, position.Claimable)

	position, err = env.svc.GetPosition(ctx, session.ID, dave)
	require.NoError(t, err)
	assert.True(t, position.HasVote)
	assert.False(t, position.Claimable)
	assert.True(t, position.Payout.IsZero())
}

type rejectingPayer struct{ LedgerPayer }

func (rejectingPayer) VerifyDeposit(context.Context, *models.SessionTransaction) error {
	return fmt.Errorf("%w: transfer not found", models.ErrInvalidDeposit)
}

// flakyPayer fails the first failures settlements and counts the sends
// that went through.
type flakyPayer struct {
	failures int
	attempts int
	sent     int
}

func (p *flakyPayer) VerifyDeposit(context.Context, *models.SessionTransaction) error { return nil }

func (p *flakyPayer) Settle(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) error {
	p.attempts++
	if p.attempts <= p.failures {
		return errors.New("rpc unavailable")
	}
	p.sent++
	return repo.MarkTransactionSettled(ctx, t.ID, time.Now())
}

func resolvedWithWinner(t *testing.T, env *testEnv, winner string) *models.Session {
	t.Helper()
	session := env.startedSession(t)
	env.vote(t, session.ID, winner, models.VoteTypeNo, ether(1))
	env.toPhase2(t, session.ID)
	env.clock.Advance(time.Minute)
	_, err := env.svc.ResolveSession(context.Background(), session.ID, stranger)
	require.NoError(t, err)
	return session
}

func TestClaimWinnings_SettlementRetriedWithoutDoublePay(t *testing.T) {
	payer := &flakyPayer{failures: 1}
	env := newTestEnv(t, WithPayer(payer))
	ctx := context.Background()
	session := resolvedWithWinner(t, env, carol)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.ErrorIs(t, err, models.ErrSettlementPending)
	requireDec(t, "1000000000000000000", paid)
	assert.Equal(t, 0, payer.sent)

	position, err := env.svc.GetPosition(ctx, session.ID, carol)
	require.NoError(t, err)
	assert.True(t, position.Claimed)
	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	requireDec(t, "1000000000000000000", detail.TotalClaimed)

	pending, err := env.repo.GetPendingSettlement(ctx, session.ID, carol)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, models.TransactionTypePayout, pending.Type)

	paid, err = env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.NoError(t, err)
	requireDec(t, "1000000000000000000", paid)
	assert.Equal(t, 1, payer.sent)

	_, err = env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.ErrorIs(t, err, models.ErrAlreadyClaimed)
	assert.Equal(t, 1, payer.sent)

	claimed := 0
	for _, typ := range env.pub.types() {
		if typ == models.EventWinningsClaimed {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestClaimWinnings_CommitFailureSendsNothing(t *testing.T) {
	payer := &flakyPayer{}
	env := newTestEnv(t, WithPayer(payer))
	ctx := context.Background()
	session := resolvedWithWinner(t, env, carol)

	current, err := env.repo.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&models.SessionEvent{
		ID:        uuid.New(),
		SessionID: session.ID,
		Seq:       current.LastEventSeq + 1,
		Type:      models.EventWinningsClaimed,
		CreatedAt: env.clock.Now(),
	}).Error)
	env.logs.Reset()

	_, err = env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrSettlementPending)
	assert.Equal(t, 0, payer.attempts)
	assert.NotContains(t, env.logs.String(), "winnings claimed")

	position, err := env.svc.GetPosition(ctx, session.ID, carol)
	require.NoError(t, err)
	assert.False(t, position.Claimed)
	assert.True(t, position.Claimable)

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, models.TransactionTypeDeposit, transactions[0].Type)
}

func TestSettlePending_SettlesEachRowOnce(t *testing.T) {
	payer := &flakyPayer{failures: 2}
	env := newTestEnv(t, WithPayer(payer))
	ctx := context.Background()

	session := env.startedSession(t)
	env.vote(t, session.ID, carol, models.VoteTypeNo, ether(1))
	env.vote(t, session.ID, dave, models.VoteTypeNo, ether(3))
	env.toPhase2(t, session.ID)
	env.clock.Advance(time.Minute)
	_, err := env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)

	for _, who := range []string{carol, dave} {
		_, err := env.svc.ClaimWinnings(ctx, session.ID, who)
		require.ErrorIs(t, err, models.ErrSettlementPending)
	}

	settled, err := env.svc.SettlePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.Equal(t, 2, payer.sent)

	settled, err = env.svc.SettlePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
	assert.Equal(t, 2, payer.sent)
}

func TestPlaceAudienceVote_RejectedDepositLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t, WithPayer(rejectingPayer{}))
	ctx := context.Background()
	session := env.startedSession(t)
	env.logs.Reset()

	_, err := env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeYes, ether(1), ether(1), "5igDepositNeverLanded")
	require.ErrorIs(t, err, models.ErrInvalidDeposit)
	assert.NotContains(t, env.logs.String(), "vote placed")

	votes, err := env.svc.GetSessionVotes(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, detail.TotalPool.IsZero())

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, transactions)
}

func TestPlaceAudienceVote_DepositReferenceBacksOneStake(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.startedSession(t)
	second := env.startedSession(t)

	_, err := env.svc.PlaceAudienceVote(ctx, first.ID, carol, models.VoteTypeYes, ether(1), ether(1), "deposit-1")
	require.NoError(t, err)
	assert.Contains(t, env.logs.String(), "vote placed")

	_, err = env.svc.PlaceAudienceVote(ctx, second.ID, carol, models.VoteTypeYes, ether(1), ether(1), "deposit-1")
	require.ErrorIs(t, err, models.ErrInvalidDeposit)

	_, err = env.svc.PlaceAudienceVote(ctx, first.ID, dave, models.VoteTypeNo, ether(1), ether(1), "deposit-1")
	require.ErrorIs(t, err, models.ErrInvalidDeposit)

	transactions, err := env.repo.ListTransactions(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "deposit-1", transactions[0].Ref())
	assert.Equal(t, models.TransactionStatusSettled, transactions[0].Status)
}

func TestAmountsAboveInt64AreStoredExactly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	stake := decimal.RequireFromString("10000000000000000001")
	_, err := env.svc.PlaceAudienceVote(ctx, session.ID, carol, models.VoteTypeNo, stake, stake, "")
	require.NoError(t, err)

	detail, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000001", detail.TotalPool.String())

	votes, err := env.svc.GetSessionVotes(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "10000000000000000001", votes[0].Amount.String())

	env.toPhase2(t, session.ID)
	env.clock.Advance(time.Minute)
	_, err = env.svc.ResolveSession(ctx, session.ID, stranger)
	require.NoError(t, err)

	paid, err := env.svc.ClaimWinnings(ctx, session.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000001", paid.String())

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	for _, tx := range transactions {
		assert.Equal(t, "10000000000000000001", tx.Amount.String())
	}
}

func TestTransactions_ListedInRecordingOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)

	voters := []string{erin, carol, dave}
	for _, who := range voters {
		env.vote(t, session.ID, who, models.VoteTypeNo, ether(1))
	}

	transactions, err := env.repo.ListTransactions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transactions, len(voters))
	for i, tx := range transactions {
		assert.Equal(t, int64(i+1), tx.Seq)
		assert.Equal(t, voters[i], tx.Address)
		assert.WithinDuration(t, env.clock.Now(), tx.CreatedAt, time.Second)
	}
}

func TestSessionEvents_AreSequencedPerSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.startedSession(t)
	env.vote(t, session.ID, carol, models.VoteTypeYes, ether(1))

	evts, err := env.svc.GetSessionEvents(ctx, session.ID, 0, 0)
	require.NoError(t, err)

	want := []models.SessionEventType{
		models.EventSessionCreated,
		models.EventParticipantJoined,
		models.EventParticipantJoined,
		models.EventSessionStarted,
		models.EventVotePlaced,
	}
	require.Len(t, evts, len(want))
	for i, e := range evts {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, want[i], e.Type)
	}

	var started models.SessionStartedPayload
	require.NoError(t, json.Unmarshal(evts[3].Payload, &started))
	assert.Equal(t, alice, started.Player1)
	assert.Equal(t, bob, started.Player2)

	tail, err := env.svc.GetSessionEvents(ctx, session.ID, 3, 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(4), tail[0].Seq)

	_, err = env.svc.GetSessionEvents(ctx, "0x"+strings.Repeat("00", 32), 0, 10)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.startedSession(t)
	second := env.startedSession(t)

	env.vote(t, first.ID, carol, models.VoteTypeYes, ether(1))
	env.vote(t, second.ID, carol, models.VoteTypeNo, ether(3))

	a, err := env.svc.GetSession(ctx, first.ID)
	require.NoError(t, err)
	b, err := env.svc.GetSession(ctx, second.ID)
	require.NoError(t, err)
	requireDec(t, "1000000000000000000", a.TotalPool)
	requireDec(t, "3000000000000000000", b.TotalPool)
}
