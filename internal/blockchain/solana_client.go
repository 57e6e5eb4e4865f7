package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
)

type signatureStatus int

const (
	signatureUnknown signatureStatus = iota
	signaturePending
	signatureLanded
	signatureFailed
)

func (s signatureStatus) String() string {
	switch s {
	case signaturePending:
		return "pending"
	case signatureLanded:
		return "landed"
	case signatureFailed:
		return "failed"
	}
	return "unknown"
}

// chainAPI is the node access the client needs.
type chainAPI interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (signatureStatus, error)
	// ConfirmedTransaction returns the transaction once it is confirmed
	// without error, or nil when it is unknown, unconfirmed or failed.
	ConfirmedTransaction(ctx context.Context, sig solana.Signature) (*solana.Transaction, error)
}

// rpcChain implements chainAPI over a JSON-RPC node.
type rpcChain struct {
	client *rpc.Client
}

func (c rpcChain) LatestBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	res, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, 0, err
	}
	return res.Value.Blockhash, res.Value.LastValidBlockHeight, nil
}

func (c rpcChain) BlockHeight(ctx context.Context) (uint64, error) {
	return c.client.GetBlockHeight(ctx, rpc.CommitmentFinalized)
}

func (c rpcChain) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
}

func (c rpcChain) SignatureStatus(ctx context.Context, sig solana.Signature) (signatureStatus, error) {
	res, err := c.client.GetSignatureStatuses(ctx, true, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return signatureUnknown, nil
	}
	if err != nil {
		return signatureUnknown, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return signatureUnknown, nil
	}

	status := res.Value[0]
	if status.Err != nil {
		return signatureFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return signatureLanded, nil
	}
	return signaturePending, nil
}

func (c rpcChain) ConfirmedTransaction(ctx context.Context, sig solana.Signature) (*solana.Transaction, error) {
	maxVersion := uint64(0)
	res, err := c.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	if res.Transaction == nil || (res.Meta != nil && res.Meta.Err != nil) {
		return nil, nil
	}
	return res.Transaction.GetTransaction()
}

// SolanaClient moves native SOL in and out of the server wallet.
type SolanaClient struct {
	chain        chainAPI
	serverWallet *solana.Wallet
	logger       zerolog.Logger
}

// RPCEndpoint maps a cluster name to its public RPC URL. Anything that is
// not a known cluster name is returned unchanged.
func RPCEndpoint(network string) string {
	switch strings.ToLower(network) {
	case "mainnet-beta", "mainnet":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "devnet", "":
		return rpc.DevNet_RPC
	}
	return network
}

// NewSolanaClient creates a client paying from the wallet whose base58
// private key is privateKey.
func NewSolanaClient(network string, privateKey string, logger zerolog.Logger) (*SolanaClient, error) {
	wallet, err := solana.WalletFromPrivateKeyBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load server wallet: %w", err)
	}

	endpoint := RPCEndpoint(network)
	client := newSolanaClient(rpcChain{client: rpc.New(endpoint)}, wallet, logger)
	client.logger.Info().Str("endpoint", endpoint).Str("wallet", wallet.PublicKey().String()).Msg("server wallet loaded")
	return client, nil
}

func newSolanaClient(chain chainAPI, wallet *solana.Wallet, logger zerolog.Logger) *SolanaClient {
	return &SolanaClient{
		chain:        chain,
		serverWallet: wallet,
		logger:       logger.With().Str("component", "solana").Logger(),
	}
}

// ServerAddress returns the base58 address of the paying wallet.
func (s *SolanaClient) ServerAddress() string {
	return s.serverWallet.PublicKey().String()
}

// SendLamports signs a transfer of lamports from the server wallet to
// recipient and submits it. record is called with the signature and the
// last block height at which the transfer can land before anything is
// sent; if it fails nothing is sent.
func (s *SolanaClient) SendLamports(
	ctx context.Context,
	recipient solana.PublicKey,
	lamports uint64,
	record func(sig solana.Signature, lastValidHeight uint64) error,
) (solana.Signature, error) {
	authority := s.serverWallet.PublicKey()

	blockhash, lastValidHeight, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, authority, recipient).Build(),
		},
		blockhash,
		solana.TransactionPayer(authority),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(authority) {
			return &s.serverWallet.PrivateKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig := tx.Signatures[0]
	if err := record(sig, lastValidHeight); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to record transfer %s: %w", sig, err)
	}

	if _, err := s.chain.Send(ctx, tx); err != nil {
		return sig, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.logger.Debug().
		Str("recipient", recipient.String()).
		Uint64("lamports", lamports).
		Str("signature", sig.String()).
		Msg("transfer sent")
	return sig, nil
}

// TransferStatus reports how far sig has progressed on chain.
func (s *SolanaClient) TransferStatus(ctx context.Context, sig solana.Signature) (signatureStatus, error) {
	return s.chain.SignatureStatus(ctx, sig)
}

// BlockHeight returns the finalized block height.
func (s *SolanaClient) BlockHeight(ctx context.Context) (uint64, error) {
	return s.chain.BlockHeight(ctx)
}

// DepositedLamports sums the system transfers from sender to the server
// wallet in the confirmed transaction sig. found is false when the
// transaction is not confirmed or carries no such transfer.
func (s *SolanaClient) DepositedLamports(ctx context.Context, sig solana.Signature, sender solana.PublicKey) (uint64, bool, error) {
	tx, err := s.chain.ConfirmedTransaction(ctx, sig)
	if err != nil {
		return 0, false, err
	}
	if tx == nil {
		return 0, false, nil
	}

	server := s.serverWallet.PublicKey()
	var total uint64
	found := false
	for _, inst := range tx.Message.Instructions {
		programID, err := tx.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil || !programID.Equals(solana.SystemProgramID) {
			continue
		}
		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil || len(accounts) < 2 {
			continue
		}
		decoded, err := system.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}
		transfer, ok := decoded.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil {
			continue
		}
		if !transfer.GetFundingAccount().PublicKey.Equals(sender) ||
			!transfer.GetRecipientAccount().PublicKey.Equals(server) {
			continue
		}
		total += *transfer.Lamports
		found = true
	}
	return total, found, nil
}
