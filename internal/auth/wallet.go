package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"vibefi/internal/models"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrInvalidSignature = errors.New("invalid signature")

// ParseChain maps the login request's chain field. Empty means evm.
func ParseChain(chain string) (models.WalletChain, error) {
	switch strings.ToLower(strings.TrimSpace(chain)) {
	case "", string(models.WalletChainEVM):
		return models.WalletChainEVM, nil
	case string(models.WalletChainSolana):
		return models.WalletChainSolana, nil
	}
	return "", fmt.Errorf("unsupported chain %q", chain)
}

// NormalizeAddress returns the canonical form of a wallet address: EIP-55
// checksummed hex for evm, base58 for solana.
func NormalizeAddress(chain models.WalletChain, address string) (string, error) {
	address = strings.TrimSpace(address)
	switch chain {
	case models.WalletChainEVM:
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("%w: %q", models.ErrInvalidAddress, address)
		}
		return common.HexToAddress(address).Hex(), nil
	case models.WalletChainSolana:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrInvalidAddress, err)
		}
		return pk.String(), nil
	}
	return "", fmt.Errorf("%w: unknown chain %q", models.ErrInvalidAddress, chain)
}

// VerifyWalletSignature checks that signature over message was produced by
// the wallet at address.
func VerifyWalletSignature(chain models.WalletChain, address string, message string, signature string) error {
	switch chain {
	case models.WalletChainEVM:
		return verifyEVMSignature(address, message, signature)
	case models.WalletChainSolana:
		return verifySolanaSignature(address, message, signature)
	}
	return fmt.Errorf("unsupported chain %q", chain)
}

// verifyEVMSignature recovers the signer of an EIP-191 personal_sign message.
func verifyEVMSignature(address string, message string, signature string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", models.ErrInvalidAddress, address)
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return fmt.Errorf("%w: signer does not match wallet", ErrInvalidSignature)
	}
	return nil
}

// verifySolanaSignature checks an ed25519 signature given in base58 or hex.
func verifySolanaSignature(address string, message string, signature string) error {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidAddress, err)
	}

	raw, err := base58.Decode(signature)
	if err != nil || len(raw) != 64 {
		raw, err = hex.DecodeString(strings.TrimPrefix(signature, "0x"))
		if err != nil {
			return fmt.Errorf("%w: undecodable signature", ErrInvalidSignature)
		}
	}
	if len(raw) != 64 {
		return fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidSignature, len(raw))
	}

	if !solana.SignatureFromBytes(raw).Verify(pk, []byte(message)) {
		return ErrInvalidSignature
	}
	return nil
}
