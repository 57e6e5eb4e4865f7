package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SessionEventType string

const (
	EventSessionCreated    SessionEventType = "SessionCreated"
	EventParticipantJoined SessionEventType = "ParticipantJoined"
	EventSessionStarted    SessionEventType = "SessionStarted"
	EventVotePlaced        SessionEventType = "VotePlaced"
	EventPhaseAdvanced     SessionEventType = "PhaseAdvanced"
	EventPlayerVoted       SessionEventType = "PlayerVoted"
	EventSessionResolved   SessionEventType = "SessionResolved"
	EventWinningsClaimed   SessionEventType = "WinningsClaimed"
)

// SessionEvent is one entry of the append-only notification log. Seq starts
// at 1 and increases by one per session.
type SessionEvent struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string           `gorm:"size:66;not null;uniqueIndex:idx_event_session_seq" json:"session_id"`
	Seq       int64            `gorm:"not null;uniqueIndex:idx_event_session_seq" json:"seq"`
	Type      SessionEventType `gorm:"size:32;not null;index" json:"type"`
	Actor     string           `gorm:"size:100" json:"actor"`
	Payload   datatypes.JSON   `json:"payload"`
	CreatedAt time.Time        `gorm:"not null" json:"created_at"`
}

func (SessionEvent) TableName() string {
	return "session_events"
}

type SessionCreatedPayload struct {
	Creator string `json:"creator"`
}

type ParticipantJoinedPayload struct {
	Participant string `json:"participant"`
	JoinIndex   int    `json:"join_index"`
}

type SessionStartedPayload struct {
	Player1       string    `json:"player1"`
	Player2       string    `json:"player2"`
	Phase1EndTime time.Time `json:"phase1_end_time"`
	Phase2EndTime time.Time `json:"phase2_end_time"`
}

type VotePlacedPayload struct {
	Voter    string          `json:"voter"`
	VoteType VoteType        `json:"vote_type"`
	Amount   decimal.Decimal `json:"amount"`
}

type PhaseAdvancedPayload struct {
	Phase SessionPhase `json:"phase"`
	Actor string       `json:"actor"`
}

type PlayerVotedPayload struct {
	Player  string `json:"player"`
	VoteYes bool   `json:"vote_yes"`
}

type SessionResolvedPayload struct {
	Player1Vote bool            `json:"player1_vote"`
	Player2Vote bool            `json:"player2_vote"`
	ResultYes   bool            `json:"result_yes"`
	Forced      bool            `json:"forced"`
	Refunded    bool            `json:"refunded"`
	TotalPool   decimal.Decimal `json:"total_pool"`
	Residual    decimal.Decimal `json:"residual"`
}

type WinningsClaimedPayload struct {
	Claimer string          `json:"claimer"`
	Amount  decimal.Decimal `json:"amount"`
	Refund  bool            `json:"refund"`
}
