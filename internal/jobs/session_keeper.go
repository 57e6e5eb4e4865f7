package jobs

import (
	"context"
	"errors"
	"time"

	"vibefi/internal/models"
	"vibefi/internal/services"

	"github.com/rs/zerolog"
)

const keeperBatchSize = 100

// SessionKeeper advances and resolves sessions whose deadlines have passed
// and retries payouts whose transfer has not gone through. It calls the
// same permissionless operations any client could.
type SessionKeeper struct {
	sessionService *services.SessionService
	address        string
	interval       time.Duration
	stopChan       chan struct{}
	logger         zerolog.Logger
}

// NewSessionKeeper creates a new keeper job acting as address
func NewSessionKeeper(
	sessionService *services.SessionService,
	address string,
	interval time.Duration,
	logger zerolog.Logger,
) *SessionKeeper {
	return &SessionKeeper{
		sessionService: sessionService,
		address:        address,
		interval:       interval,
		stopChan:       make(chan struct{}),
		logger:         logger.With().Str("job", "session_keeper").Logger(),
	}
}

// Start runs the keeper loop until Stop is called
func (k *SessionKeeper) Start() {
	k.logger.Info().Dur("interval", k.interval).Msg("starting session keeper")

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.RunOnce(context.Background())
		case <-k.stopChan:
			k.logger.Info().Msg("stopping session keeper")
			return
		}
	}
}

// Stop stops the keeper loop
func (k *SessionKeeper) Stop() {
	close(k.stopChan)
}

// RunOnce processes one batch of stale sessions and returns how many it
// moved forward. Pending settlements are retried on every run.
func (k *SessionKeeper) RunOnce(ctx context.Context) int {
	k.settlePending(ctx)

	sessions, err := k.sessionService.StaleSessions(ctx, keeperBatchSize)
	if err != nil {
		k.logger.Error().Err(err).Msg("failed to list stale sessions")
		return 0
	}

	now := k.sessionService.Now()
	advanced := 0
	for _, session := range sessions {
		var opErr error
		if session.Phase == models.SessionPhasePhase1Voting && now.Before(*session.Phase2EndTime) {
			_, opErr = k.sessionService.MoveToPhase2(ctx, session.ID, k.address)
		} else {
			_, opErr = k.sessionService.ResolveSession(ctx, session.ID, k.address)
		}

		if opErr != nil {
			if errors.Is(opErr, models.ErrInvalidPhase) || errors.Is(opErr, models.ErrTooEarly) {
				k.logger.Debug().Err(opErr).Str("session_id", session.ID).Msg("session already moved on")
				continue
			}
			k.logger.Error().Err(opErr).Str("session_id", session.ID).Msg("failed to advance session")
			continue
		}
		advanced++
	}

	if advanced > 0 {
		k.logger.Info().Int("count", advanced).Msg("advanced stale sessions")
	}
	return advanced
}

func (k *SessionKeeper) settlePending(ctx context.Context) {
	settled, err := k.sessionService.SettlePending(ctx, keeperBatchSize)
	if err != nil {
		k.logger.Warn().Err(err).Int("settled", settled).Msg("some settlements are still pending")
		return
	}
	if settled > 0 {
		k.logger.Info().Int("count", settled).Msg("settled pending payouts")
	}
}
