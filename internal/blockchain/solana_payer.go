package blockchain

import (
	"context"
	"fmt"
	"time"

	"vibefi/internal/models"
	"vibefi/internal/repository"
	"vibefi/internal/services"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultConfirmAttempts = 20
	defaultConfirmInterval = 500 * time.Millisecond
)

// SolanaPayer checks stakes against on-chain deposits into the server
// wallet and settles payouts and refunds as SOL transfers out of it.
// Amounts are in lamports.
type SolanaPayer struct {
	client          *SolanaClient
	confirmAttempts int
	confirmInterval time.Duration
	logger          zerolog.Logger
}

var _ services.Payer = (*SolanaPayer)(nil)

func NewSolanaPayer(client *SolanaClient, logger zerolog.Logger) *SolanaPayer {
	return &SolanaPayer{
		client:          client,
		confirmAttempts: defaultConfirmAttempts,
		confirmInterval: defaultConfirmInterval,
		logger:          logger.With().Str("component", "solana_payer").Logger(),
	}
}

// VerifyDeposit requires the row's reference to be a confirmed transaction
// whose system transfers from the staker to the server wallet add up to
// exactly the stake.
func (p *SolanaPayer) VerifyDeposit(ctx context.Context, t *models.SessionTransaction) error {
	if t.Type != models.TransactionTypeDeposit {
		return fmt.Errorf("cannot verify a %s as a deposit", t.Type)
	}
	if t.Ref() == "" {
		return fmt.Errorf("%w: a deposit signature is required", models.ErrInvalidDeposit)
	}
	sig, err := solana.SignatureFromBase58(t.Ref())
	if err != nil {
		return fmt.Errorf("%w: %q is not a transaction signature", models.ErrInvalidDeposit, t.Ref())
	}
	sender, err := solana.PublicKeyFromBase58(t.Address)
	if err != nil {
		return fmt.Errorf("%w: %s is not a solana address", models.ErrInvalidAddress, t.Address)
	}
	want, err := toLamports(t.Amount.Decimal)
	if err != nil {
		return err
	}

	got, found, err := p.client.DepositedLamports(ctx, sig, sender)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s holds no confirmed transfer from %s to %s",
			models.ErrInvalidDeposit, sig, sender, p.client.ServerAddress())
	}
	if got != want {
		return fmt.Errorf("%w: deposit %s moved %d lamports, stake is %d",
			models.ErrAmountMismatch, sig, got, want)
	}
	return nil
}

// Settle pays a pending payout or refund. A transfer that was already sent
// is looked up first and only re-sent once it has failed or its blockhash
// has expired, so a row is never paid twice.
func (p *SolanaPayer) Settle(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) error {
	if t.Settled() {
		return nil
	}
	if t.Type == models.TransactionTypeDeposit {
		return fmt.Errorf("deposits are not settled by the server")
	}
	recipient, err := solana.PublicKeyFromBase58(t.Address)
	if err != nil {
		return fmt.Errorf("%w: %s is not a solana address", models.ErrInvalidAddress, t.Address)
	}
	lamports, err := toLamports(t.Amount.Decimal)
	if err != nil {
		return err
	}

	if t.Ref() != "" {
		resend, err := p.needsResend(ctx, repo, t)
		if err != nil || !resend {
			return err
		}
	}

	sig, err := p.client.SendLamports(ctx, recipient, lamports, func(sig solana.Signature, lastValidHeight uint64) error {
		return repo.RecordSettlementAttempt(ctx, t.ID, sig.String(), lastValidHeight)
	})
	if sig != (solana.Signature{}) {
		ref := sig.String()
		t.Reference = &ref
	}
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("session_id", t.SessionID).
		Str("recipient", t.Address).
		Str("type", string(t.Type)).
		Uint64("lamports", lamports).
		Str("signature", sig.String()).
		Msg("session transfer sent")

	return p.awaitConfirmation(ctx, repo, t, sig)
}

// needsResend inspects the recorded transfer. It settles the row and
// returns false when the transfer landed, and returns an error while the
// transfer may still land.
func (p *SolanaPayer) needsResend(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) (bool, error) {
	sig, err := solana.SignatureFromBase58(t.Ref())
	if err != nil {
		return false, fmt.Errorf("stored reference %q is not a signature: %w", t.Ref(), err)
	}
	status, err := p.client.TransferStatus(ctx, sig)
	if err != nil {
		return false, fmt.Errorf("failed to get status of %s: %w", sig, err)
	}

	switch status {
	case signatureLanded:
		return false, p.markSettled(ctx, repo, t)
	case signatureFailed:
		return true, nil
	case signaturePending:
		return false, fmt.Errorf("transfer %s is not confirmed yet", sig)
	}

	height, err := p.client.BlockHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get block height: %w", err)
	}
	if height <= t.ReferenceExpiry {
		return false, fmt.Errorf("transfer %s can still land until block %d, now at %d", sig, t.ReferenceExpiry, height)
	}
	return true, nil
}

func (p *SolanaPayer) awaitConfirmation(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction, sig solana.Signature) error {
	for attempt := 0; attempt < p.confirmAttempts; attempt++ {
		status, err := p.client.TransferStatus(ctx, sig)
		if err == nil && status == signatureLanded {
			return p.markSettled(ctx, repo, t)
		}
		if err == nil && status == signatureFailed {
			return fmt.Errorf("transfer %s failed on chain", sig)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.confirmInterval):
		}
	}
	return fmt.Errorf("transfer %s is not confirmed yet", sig)
}

func (p *SolanaPayer) markSettled(ctx context.Context, repo *repository.Repository, t *models.SessionTransaction) error {
	now := time.Now().UTC()
	if err := repo.MarkTransactionSettled(ctx, t.ID, now); err != nil {
		return fmt.Errorf("failed to mark %s settled: %w", t.ID, err)
	}
	t.Status = models.TransactionStatusSettled
	t.SettledAt = &now
	return nil
}

func toLamports(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() || !amount.IsInteger() {
		return 0, fmt.Errorf("amount %s is not a whole number of lamports", amount)
	}
	n := amount.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount %s exceeds the lamport range", amount)
	}
	return n.Uint64(), nil
}
