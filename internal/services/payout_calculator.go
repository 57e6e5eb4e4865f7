package services

import (
	"vibefi/internal/models"

	"github.com/shopspring/decimal"
)

const (
	standardWeightBps = 10000
	superWeightBps    = 11500
)

// VoteWeightBps returns the payout weight of a vote type in basis points.
func VoteWeightBps(voteType models.VoteType) int64 {
	switch voteType {
	case models.VoteTypeSuperYes, models.VoteTypeSuperNo:
		return superWeightBps
	case models.VoteTypeYes, models.VoteTypeNo:
		return standardWeightBps
	}
	return 0
}

// PayoutOutcome is the settlement of one ledger. Payouts is index-aligned
// with the votes passed to ComputePayouts.
type PayoutOutcome struct {
	Payouts     []decimal.Decimal
	Residual    decimal.Decimal
	Refunded    bool
	WinnerCount int
}

// Total sums every amount owed.
func (o PayoutOutcome) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Payouts {
		total = total.Add(p)
	}
	return total
}

// ComputePayouts splits totalPool across the winning side pro rata to
// amount times weight. Each winner receives the floor of its share; the
// rounding remainder goes to the winner with the largest weighted stake,
// earliest in the ledger on ties. When nobody is on the winning side every
// entry is owed its own stake back.
func ComputePayouts(votes []*models.SessionVote, resultYes bool, totalPool decimal.Decimal) PayoutOutcome {
	outcome := PayoutOutcome{
		Payouts:  make([]decimal.Decimal, len(votes)),
		Residual: decimal.Zero,
	}
	for i := range outcome.Payouts {
		outcome.Payouts[i] = decimal.Zero
	}
	if len(votes) == 0 {
		return outcome
	}

	weighted := make([]decimal.Decimal, len(votes))
	totalWeight := decimal.Zero
	best := -1
	for i, v := range votes {
		weighted[i] = decimal.Zero
		if !v.VoteType.Wins(resultYes) || !v.Amount.IsPositive() {
			continue
		}
		weighted[i] = v.Amount.Mul(decimal.NewFromInt(VoteWeightBps(v.VoteType)))
		totalWeight = totalWeight.Add(weighted[i])
		outcome.WinnerCount++
		if best < 0 || weighted[i].GreaterThan(weighted[best]) {
			best = i
		}
	}

	if outcome.WinnerCount == 0 || !totalWeight.IsPositive() {
		for i, v := range votes {
			outcome.Payouts[i] = v.Amount.Decimal
		}
		outcome.Refunded = true
		outcome.WinnerCount = 0
		return outcome
	}

	distributed := decimal.Zero
	for i := range votes {
		if !weighted[i].IsPositive() {
			continue
		}
		share, _ := weighted[i].Mul(totalPool).QuoRem(totalWeight, 0)
		outcome.Payouts[i] = share
		distributed = distributed.Add(share)
	}

	outcome.Residual = totalPool.Sub(distributed)
	outcome.Payouts[best] = outcome.Payouts[best].Add(outcome.Residual)
	return outcome
}
