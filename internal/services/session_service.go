package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vibefi/internal/events"
	"vibefi/internal/models"
	"vibefi/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SessionConfig holds the engine constants.
type SessionConfig struct {
	Phase1Duration time.Duration
	Phase2Duration time.Duration
	NeutralStake   decimal.Decimal
}

// DefaultSessionConfig is four minutes of audience voting, one minute for
// players and a neutral stake of 10^15 base units.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Phase1Duration: 4 * time.Minute,
		Phase2Duration: time.Minute,
		NeutralStake:   decimal.New(1, 15),
	}
}

// SessionService runs the session state machine. Every mutating call is
// serialised by mu and committed in a single database transaction; events
// are published only after commit.
type SessionService struct {
	repo      *repository.Repository
	cfg       SessionConfig
	clock     Clock
	ids       IDGenerator
	payer     Payer
	publisher events.Publisher
	logger    zerolog.Logger
	mu        sync.Mutex
	settleMu  sync.Mutex
}

type SessionOption func(*SessionService)

func WithClock(clock Clock) SessionOption {
	return func(s *SessionService) { s.clock = clock }
}

func WithIDGenerator(ids IDGenerator) SessionOption {
	return func(s *SessionService) { s.ids = ids }
}

func WithPayer(payer Payer) SessionOption {
	return func(s *SessionService) { s.payer = payer }
}

func NewSessionService(
	repo *repository.Repository,
	cfg SessionConfig,
	publisher events.Publisher,
	logger zerolog.Logger,
	opts ...SessionOption,
) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &SessionService{
		repo:      repo,
		cfg:       cfg,
		clock:     NewSystemClock(),
		ids:       NewKeccakIDGenerator(),
		payer:     LedgerPayer{},
		publisher: publisher,
		logger:    logger.With().Str("service", "session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the engine constants.
func (s *SessionService) Config() SessionConfig {
	return s.cfg
}

// recorder collects the events of one operation and numbers them with the
// session's event sequence. Hooks queued with afterCommit run only once the
// operation's transaction has committed.
type recorder struct {
	session   *models.Session
	now       time.Time
	events    []*models.SessionEvent
	committed []func()
}

func (r *recorder) afterCommit(fn func()) {
	r.committed = append(r.committed, fn)
}

func (r *recorder) runCommitted() {
	for _, fn := range r.committed {
		fn()
	}
}

func (r *recorder) emit(eventType models.SessionEventType, actor string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	r.session.LastEventSeq++
	r.events = append(r.events, &models.SessionEvent{
		ID:        uuid.New(),
		SessionID: r.session.ID,
		Seq:       r.session.LastEventSeq,
		Type:      eventType,
		Actor:     actor,
		Payload:   datatypes.JSON(data),
		CreatedAt: r.now,
	})
	return nil
}

func (r *recorder) appendEvents(ctx context.Context, tx *repository.Repository) error {
	for _, event := range r.events {
		if err := tx.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("failed to append %s event: %w", event.Type, err)
		}
	}
	return nil
}

// mutate loads the session, applies fn and persists the session and its
// events atomically. Nothing is written when fn fails.
func (s *SessionService) mutate(
	ctx context.Context,
	sessionID string,
	fn func(tx *repository.Repository, rec *recorder) error,
) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var rec *recorder
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		before := session.Phase
		rec = &recorder{session: session, now: now}

		if err := fn(tx, rec); err != nil {
			return err
		}
		if session.Phase.Rank() < before.Rank() {
			return fmt.Errorf("phase cannot move from %s back to %s", before, session.Phase)
		}

		if err := tx.UpdateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return rec.appendEvents(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	rec.runCommitted()
	s.publish(ctx, rec.events)
	return rec.session, nil
}

func (s *SessionService) publish(ctx context.Context, evts []*models.SessionEvent) {
	for _, event := range evts {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("session_id", event.SessionID).
				Str("type", string(event.Type)).
				Msg("failed to publish event")
		}
	}
}

// CreateSession allocates a new session in phase OPEN with caller as creator.
func (s *SessionService) CreateSession(ctx context.Context, caller string) (*models.Session, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: missing caller", models.ErrUnauthorized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	id, err := s.ids.NewID(caller, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	session := &models.Session{
		ID:           id,
		Creator:      caller,
		Phase:        models.SessionPhaseOpen,
		CreatedAt:    now,
		TotalPool:    models.NewBaseUnits(decimal.Zero),
		TotalClaimed: models.NewBaseUnits(decimal.Zero),
		Residual:     models.NewBaseUnits(decimal.Zero),
	}
	rec := &recorder{session: session, now: now}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		exists, err := tx.SessionExists(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check session id: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", models.ErrIdentifierCollision, id)
		}

		if err := rec.emit(models.EventSessionCreated, caller, models.SessionCreatedPayload{Creator: caller}); err != nil {
			return err
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return rec.appendEvents(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("session_id", id).Str("actor", caller).Msg("session created")
	s.publish(ctx, rec.events)
	return session, nil
}

// JoinSession registers caller as a participant while the session is OPEN.
func (s *SessionService) JoinSession(ctx context.Context, sessionID string, caller string) (*models.Session, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: missing caller", models.ErrUnauthorized)
	}

	return s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if session.Phase != models.SessionPhaseOpen {
			return fmt.Errorf("%w: cannot join, session is %s", models.ErrInvalidPhase, session.Phase)
		}

		joined, err := tx.IsParticipant(ctx, session.ID, caller)
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}
		if joined {
			return fmt.Errorf("%w: %s", models.ErrAlreadyJoined, caller)
		}

		count, err := tx.CountParticipants(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}

		participant := &models.SessionParticipant{
			SessionID: session.ID,
			Address:   caller,
			JoinIndex: int(count),
			JoinedAt:  rec.now,
		}
		if err := tx.AddParticipant(ctx, participant); err != nil {
			return fmt.Errorf("failed to add participant: %w", err)
		}

		rec.afterCommit(func() {
			s.logger.Info().Str("session_id", session.ID).Str("actor", caller).Int("join_index", participant.JoinIndex).Msg("participant joined")
		})
		return rec.emit(models.EventParticipantJoined, caller, models.ParticipantJoinedPayload{
			Participant: caller,
			JoinIndex:   participant.JoinIndex,
		})
	})
}

// StartSession selects the first two joiners as players and opens audience
// voting. Only the creator may start.
func (s *SessionService) StartSession(ctx context.Context, sessionID string, caller string) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(tx *repository.Repository, rec *recorder) error {
		session := rec.session
		if caller == "" || caller != session.Creator {
			return fmt.Errorf("%w: only the creator can start the session", models.ErrUnauthorized)
		}
		if session.Phase != models.SessionPhaseOpen {
			return fmt.Errorf("%w: cannot start, session is %s", models.ErrInvalidPhase, session.Phase)
		}

		participants, err := tx.ListParticipants(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}
		if len(participants) < 2 {
			return fmt.Errorf("%w: %d joined, need 2", models.ErrInsufficientParticipants, len(participants))
		}

		phase1End := rec.now.Add(s.cfg.Phase1Duration)
		phase2End := phase1End.Add(s.cfg.Phase2Duration)

		session.Player1 = participants[0].Address
		session.Player2 = participants[1].Address
		session.Phase = models.SessionPhasePhase1Voting
		session.Phase1StartTime = timePtr(rec.now)
		session.Phase1EndTime = timePtr(phase1End)
		session.Phase2EndTime = timePtr(phase2End)

		rec.afterCommit(func() {
			s.logger.Info().
				Str("session_id", session.ID).
				Str("player1", session.Player1).
				Str("player2", session.Player2).
				Time("phase1_end_time", phase1End).
				Msg("session started")
		})
		return rec.emit(models.EventSessionStarted, caller, models.SessionStartedPayload{
			Player1:       session.Player1,
			Player2:       session.Player2,
			Phase1EndTime: phase1End,
			Phase2EndTime: phase2End,
		})
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}
