package models

import "errors"

var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrInvalidPhase             = errors.New("invalid phase")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrAlreadyJoined            = errors.New("already joined")
	ErrAlreadyVoted             = errors.New("already voted")
	ErrAlreadyClaimed           = errors.New("already claimed")
	ErrTooEarly                 = errors.New("too early")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrNothingToClaim           = errors.New("nothing to claim")
	ErrAmountMismatch           = errors.New("amount mismatch")
	ErrInvalidVoteType          = errors.New("invalid vote type")
	ErrInvalidStake             = errors.New("invalid stake")
	ErrIdentifierCollision      = errors.New("session identifier collision")
	ErrConservationViolation    = errors.New("claim would exceed session pool")
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidDeposit           = errors.New("invalid deposit")
	ErrSettlementPending        = errors.New("settlement pending")
	ErrLoginChallenge           = errors.New("login challenge missing or expired")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrSessionNotFound, "SessionNotFound"},
	{ErrInvalidPhase, "InvalidPhase"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrAlreadyJoined, "AlreadyJoined"},
	{ErrAlreadyVoted, "AlreadyVoted"},
	{ErrAlreadyClaimed, "AlreadyClaimed"},
	{ErrTooEarly, "TooEarly"},
	{ErrInsufficientParticipants, "InsufficientParticipants"},
	{ErrNothingToClaim, "NothingToClaim"},
	{ErrAmountMismatch, "AmountMismatch"},
	{ErrInvalidVoteType, "InvalidVoteType"},
	{ErrInvalidStake, "InvalidStake"},
	{ErrIdentifierCollision, "IdentifierCollision"},
	{ErrConservationViolation, "ConservationViolation"},
	{ErrInvalidAddress, "InvalidAddress"},
	{ErrInvalidDeposit, "InvalidDeposit"},
	{ErrSettlementPending, "SettlementPending"},
	{ErrLoginChallenge, "LoginChallenge"},
}

// ErrorCode returns the stable error kind name for err, or "Internal" when
// err does not wrap one of the engine errors.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}
