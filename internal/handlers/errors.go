package handlers

import (
	"errors"
	"net/http"

	"vibefi/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidPhase),
		errors.Is(err, models.ErrAlreadyJoined),
		errors.Is(err, models.ErrAlreadyVoted),
		errors.Is(err, models.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, models.ErrTooEarly):
		return http.StatusTooEarly
	case errors.Is(err, models.ErrInsufficientParticipants),
		errors.Is(err, models.ErrNothingToClaim):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrAmountMismatch),
		errors.Is(err, models.ErrInvalidStake),
		errors.Is(err, models.ErrInvalidVoteType),
		errors.Is(err, models.ErrInvalidAddress),
		errors.Is(err, models.ErrInvalidDeposit):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrLoginChallenge):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError renders {"error", "code"} for err. Internal failures are
// logged and reported without detail.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	code := models.ErrorCode(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Str("code", code).Msg("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "InvalidRequest"})
}
