package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"vibefi/internal/database"
	"vibefi/internal/models"
	"vibefi/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	creator  = "0xC0000000000000000000000000000000000000C1"
	alice    = "0xA000000000000000000000000000000000000A11"
	bob      = "0xB000000000000000000000000000000000000B0B"
	carol    = "0xC000000000000000000000000000000000000CA1"
	dave     = "0xD000000000000000000000000000000000000DA4"
	erin     = "0xE000000000000000000000000000000000000E41"
	stranger = "0x5000000000000000000000000000000000000555"
)

var oneEther = decimal.New(1, 18)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *models.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []models.SessionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SessionEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc   *SessionService
	db    *gorm.DB
	repo  *repository.Repository
	clock *fakeClock
	pub   *recordingPublisher
	logs  *bytes.Buffer
}

func newTestEnv(t *testing.T, opts ...SessionOption) *testEnv {
	t.Helper()

	db := newTestDB(t)
	repo := repository.NewRepository(db)
	clock := newFakeClock()
	pub := &recordingPublisher{}
	logs := &bytes.Buffer{}
	opts = append([]SessionOption{WithClock(clock)}, opts...)
	svc := NewSessionService(repo, DefaultSessionConfig(), pub, zerolog.New(logs), opts...)
	return &testEnv{svc: svc, db: db, repo: repo, clock: clock, pub: pub, logs: logs}
}

// startedSession creates a session with alice and bob as players and
// returns it in PHASE1_VOTING.
func (e *testEnv) startedSession(t *testing.T) *models.Session {
	t.Helper()
	ctx := context.Background()

	session, err := e.svc.CreateSession(ctx, creator)
	require.NoError(t, err)
	_, err = e.svc.JoinSession(ctx, session.ID, alice)
	require.NoError(t, err)
	_, err = e.svc.JoinSession(ctx, session.ID, bob)
	require.NoError(t, err)
	session, err = e.svc.StartSession(ctx, session.ID, creator)
	require.NoError(t, err)
	return session
}

func (e *testEnv) vote(t *testing.T, sessionID, voter string, voteType models.VoteType, amount decimal.Decimal) {
	t.Helper()
	_, err := e.svc.PlaceAudienceVote(context.Background(), sessionID, voter, voteType, amount, amount, "")
	require.NoError(t, err)
}

// toPhase2 moves a started session past the phase 1 deadline.
func (e *testEnv) toPhase2(t *testing.T, sessionID string) {
	t.Helper()
	e.clock.Advance(e.svc.Config().Phase1Duration)
	_, err := e.svc.MoveToPhase2(context.Background(), sessionID, stranger)
	require.NoError(t, err)
}

func ether(n int64) decimal.Decimal {
	return oneEther.Mul(decimal.NewFromInt(n))
}
