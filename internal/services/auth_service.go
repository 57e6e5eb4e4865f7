package services

import (
	"context"
	"fmt"
	"time"

	"vibefi/internal/auth"
	"vibefi/internal/models"
	"vibefi/internal/repository"
	"vibefi/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const nicknameAttempts = 5

// AuthService handles wallet login and user records
type AuthService struct {
	repo         *repository.Repository
	loginMessage string
	nonceTTL     time.Duration
	clock        Clock
	logger       zerolog.Logger
}

type AuthOption func(*AuthService)

func WithAuthClock(clock Clock) AuthOption {
	return func(s *AuthService) { s.clock = clock }
}

// NewAuthService creates a new AuthService. loginMessage prefixes every
// challenge and nonceTTL bounds how long a challenge can be signed.
func NewAuthService(
	repo *repository.Repository,
	loginMessage string,
	nonceTTL time.Duration,
	logger zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		repo:         repo,
		loginMessage: loginMessage,
		nonceTTL:     nonceTTL,
		clock:        NewSystemClock(),
		logger:       logger.With().Str("service", "auth").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueLoginChallenge stores a fresh nonce for address, replacing any
// earlier one, and returns the message the wallet must sign.
func (s *AuthService) IssueLoginChallenge(ctx context.Context, chain models.WalletChain, address string) (string, time.Time, error) {
	challenge := &models.LoginChallenge{
		Address:   address,
		Chain:     chain,
		Nonce:     uuid.NewString(),
		ExpiresAt: s.clock.Now().Add(s.nonceTTL),
	}
	if err := s.repo.SaveLoginChallenge(ctx, challenge); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store login challenge: %w", err)
	}
	return s.challengeMessage(challenge), challenge.ExpiresAt, nil
}

func (s *AuthService) challengeMessage(c *models.LoginChallenge) string {
	return fmt.Sprintf("%s\n\nAddress: %s\nNonce: %s\nExpires: %s",
		s.loginMessage, c.Address, c.Nonce, c.ExpiresAt.UTC().Format(time.RFC3339))
}

// Login checks signature against the address's outstanding challenge,
// consumes the challenge and returns the wallet's user. A signature is
// accepted once.
func (s *AuthService) Login(ctx context.Context, chain models.WalletChain, address string, signature string) (*models.User, error) {
	challenge, err := s.repo.GetLoginChallenge(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if challenge == nil || challenge.Chain != chain {
		return nil, fmt.Errorf("%w: request a message for %s first", models.ErrLoginChallenge, address)
	}
	if !s.clock.Now().Before(challenge.ExpiresAt) {
		return nil, fmt.Errorf("%w: challenge for %s expired at %s",
			models.ErrLoginChallenge, address, challenge.ExpiresAt.Format(time.RFC3339))
	}

	if err := auth.VerifyWalletSignature(chain, address, s.challengeMessage(challenge), signature); err != nil {
		return nil, err
	}

	consumed, err := s.repo.ConsumeLoginChallenge(ctx, address, challenge.Nonce)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !consumed {
		return nil, fmt.Errorf("%w: challenge for %s was already used", models.ErrLoginChallenge, address)
	}

	return s.ProcessWalletLogin(ctx, address, chain)
}

// ProcessWalletLogin finds or creates a user by wallet address
func (s *AuthService) ProcessWalletLogin(ctx context.Context, walletAddress string, chain models.WalletChain) (*models.User, error) {
	user, err := s.repo.GetUserByWallet(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if user != nil {
		s.logger.Debug().Str("wallet", walletAddress).Uint("user_id", user.ID).Msg("user logged in")
		return user, nil
	}

	nickname, err := s.uniqueNickname(ctx)
	if err != nil {
		return nil, err
	}

	user = &models.User{
		WalletAddress: walletAddress,
		Chain:         chain,
		Nickname:      nickname,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Str("wallet", walletAddress).Uint("user_id", user.ID).Str("nickname", nickname).Msg("new user created")
	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

func (s *AuthService) uniqueNickname(ctx context.Context) (string, error) {
	for i := 0; i < nicknameAttempts; i++ {
		nickname, err := utils.GenerateNickname()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.NicknameExists(ctx, nickname)
		if err != nil {
			return "", fmt.Errorf("failed to check nickname: %w", err)
		}
		if !taken {
			return nickname, nil
		}
	}
	return "", fmt.Errorf("failed to find a free nickname after %d attempts", nicknameAttempts)
}
