package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SessionPhase string

const (
	SessionPhaseOpen               SessionPhase = "OPEN"
	SessionPhasePhase1Voting       SessionPhase = "PHASE1_VOTING"
	SessionPhasePhase2PlayerVoting SessionPhase = "PHASE2_PLAYER_VOTING"
	SessionPhaseResolved           SessionPhase = "RESOLVED"
)

// Rank orders phases along the forward-only lifecycle. Unknown phases rank -1.
func (p SessionPhase) Rank() int {
	switch p {
	case SessionPhaseOpen:
		return 0
	case SessionPhasePhase1Voting:
		return 1
	case SessionPhasePhase2PlayerVoting:
		return 2
	case SessionPhaseResolved:
		return 3
	}
	return -1
}

type VoteType string

const (
	VoteTypeYes      VoteType = "YES"
	VoteTypeNo       VoteType = "NO"
	VoteTypeNeutral  VoteType = "NEUTRAL"
	VoteTypeSuperYes VoteType = "SUPER_YES"
	VoteTypeSuperNo  VoteType = "SUPER_NO"
)

// voteTypeCodes follows the uint8 encoding used by the on-chain client.
var voteTypeCodes = []VoteType{
	VoteTypeYes,
	VoteTypeNo,
	VoteTypeNeutral,
	VoteTypeSuperYes,
	VoteTypeSuperNo,
}

// ParseVoteType accepts either the vote type name (case-insensitive) or its
// numeric code 0..4.
func ParseVoteType(s string) (VoteType, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		if code < 0 || code >= len(voteTypeCodes) {
			return "", fmt.Errorf("%w: code %d", ErrInvalidVoteType, code)
		}
		return voteTypeCodes[code], nil
	}
	vt := VoteType(strings.ToUpper(s))
	if !vt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVoteType, s)
	}
	return vt, nil
}

func (v VoteType) Valid() bool {
	for _, known := range voteTypeCodes {
		if v == known {
			return true
		}
	}
	return false
}

// Code returns the numeric encoding of the vote type, or -1 if unknown.
func (v VoteType) Code() int {
	for i, known := range voteTypeCodes {
		if v == known {
			return i
		}
	}
	return -1
}

// Wins reports whether a stake of this type is on the winning side of result.
// NEUTRAL never wins.
func (v VoteType) Wins(resultYes bool) bool {
	switch v {
	case VoteTypeYes, VoteTypeSuperYes:
		return resultYes
	case VoteTypeNo, VoteTypeSuperNo:
		return !resultYes
	}
	return false
}

// Session is one prediction round between two players and an audience.
type Session struct {
	ID              string          `gorm:"primaryKey;size:66" json:"id"`
	Creator         string          `gorm:"size:100;not null;index" json:"creator"`
	Player1         string          `gorm:"size:100" json:"player1"`
	Player2         string          `gorm:"size:100" json:"player2"`
	Phase           SessionPhase    `gorm:"size:32;not null;default:OPEN;index" json:"phase"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	Phase1StartTime *time.Time      `json:"phase1_start_time"`
	Phase1EndTime   *time.Time      `gorm:"index" json:"phase1_end_time"`
	Phase2EndTime   *time.Time      `gorm:"index" json:"phase2_end_time"`
	Resolved        bool            `gorm:"not null;default:false" json:"resolved"`
	Player1Vote     bool            `gorm:"not null;default:false" json:"player1_vote"`
	Player2Vote     bool            `gorm:"not null;default:false" json:"player2_vote"`
	Player1Voted    bool            `gorm:"not null;default:false" json:"player1_voted"`
	Player2Voted    bool            `gorm:"not null;default:false" json:"player2_voted"`
	ResultYes       bool            `gorm:"not null;default:false" json:"result_yes"`
	Refunded        bool            `gorm:"not null;default:false" json:"refunded"`
	TotalPool       BaseUnits       `gorm:"not null;default:0" json:"total_pool"`
	TotalClaimed    BaseUnits       `gorm:"not null;default:0" json:"total_claimed"`
	Residual        BaseUnits       `gorm:"not null;default:0" json:"residual"`
	LastEventSeq    int64           `gorm:"not null;default:0" json:"last_event_seq"`
	ResolvedAt      *time.Time      `json:"resolved_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsPlayer reports whether addr is one of the two selected players.
func (s *Session) IsPlayer(addr string) bool {
	if addr == "" {
		return false
	}
	return addr == s.Player1 || addr == s.Player2
}

// BothPlayersVoted reports whether both player vote slots have been written.
func (s *Session) BothPlayersVoted() bool {
	return s.Player1Voted && s.Player2Voted
}

// SessionParticipant records one identity that joined before start.
type SessionParticipant struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"size:66;not null;uniqueIndex:idx_participant_session_address;index" json:"session_id"`
	Address   string    `gorm:"size:100;not null;uniqueIndex:idx_participant_session_address" json:"address"`
	JoinIndex int       `gorm:"not null" json:"join_index"`
	JoinedAt  time.Time `gorm:"not null" json:"joined_at"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}

// SessionVote is one audience stake in the append-only ledger. Payout is
// fixed at resolution; Claimed is the per-voter claim flag.
type SessionVote struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	SessionID string          `gorm:"size:66;not null;uniqueIndex:idx_vote_session_voter;index" json:"session_id"`
	Seq       int             `gorm:"not null" json:"seq"`
	Voter     string          `gorm:"size:100;not null;uniqueIndex:idx_vote_session_voter" json:"voter"`
	VoteType  VoteType        `gorm:"size:16;not null" json:"vote_type"`
	Amount    BaseUnits       `gorm:"not null" json:"amount"`
	Payout    BaseUnits       `gorm:"not null;default:0" json:"payout"`
	Claimed   bool            `gorm:"not null;default:false" json:"claimed"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (SessionVote) TableName() string {
	return "session_votes"
}

// SessionDetail is the full session record returned by lookups.
type SessionDetail struct {
	*Session
	Participants []string `json:"participants"`
}

// Position summarizes one address's stake and claim state in a session.
type Position struct {
	SessionID string          `json:"session_id"`
	Address   string          `json:"address"`
	HasVote   bool            `json:"has_vote"`
	VoteType  VoteType        `json:"vote_type,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Payout    decimal.Decimal `json:"payout"`
	Claimable bool            `json:"claimable"`
	Claimed   bool            `json:"claimed"`
	Resolved  bool            `json:"resolved"`
}

// PlaceVoteRequest is the body of POST /api/sessions/:id/votes. Amount is
// the declared stake and Value the transferred value, both in base units.
// Signature names the on-chain deposit when the server settles on chain.
type PlaceVoteRequest struct {
	VoteType  string `json:"vote_type" binding:"required"`
	Amount    string `json:"amount"`
	Value     string `json:"value" binding:"required"`
	Signature string `json:"signature"`
}

// PlayerVoteRequest is the body of POST /api/sessions/:id/player-vote.
type PlayerVoteRequest struct {
	VoteYes *bool `json:"vote_yes" binding:"required"`
}
