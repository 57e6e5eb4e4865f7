package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"vibefi/internal/auth"
	"vibefi/internal/events"
	"vibefi/internal/models"
	"vibefi/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type SessionHandler struct {
	sessionService *services.SessionService
	hub            *events.Hub
}

func NewSessionHandler(sessionService *services.SessionService, hub *events.Hub) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		hub:            hub,
	}
}

// RegisterRoutes mounts read-only routes on public and mutating routes on
// protected, which must run auth.AuthMiddleware.
func (h *SessionHandler) RegisterRoutes(public *gin.RouterGroup, protected *gin.RouterGroup) {
	public.GET("/sessions/:id", h.GetSession)
	public.GET("/sessions/:id/votes", h.GetSessionVotes)
	public.GET("/sessions/:id/participants/count", h.GetParticipantCount)
	public.GET("/sessions/:id/events", h.GetSessionEvents)
	public.GET("/sessions/:id/transactions", h.GetSessionTransactions)
	public.GET("/sessions/:id/positions/:address", h.GetPosition)

	protected.POST("/sessions", h.CreateSession)
	protected.POST("/sessions/:id/join", h.JoinSession)
	protected.POST("/sessions/:id/start", h.StartSession)
	protected.POST("/sessions/:id/votes", h.PlaceVote)
	protected.POST("/sessions/:id/phase2", h.MoveToPhase2)
	protected.POST("/sessions/:id/player-vote", h.PlayerVote)
	protected.POST("/sessions/:id/resolve", h.ResolveSession)
	protected.POST("/sessions/:id/claim", h.ClaimWinnings)
}

// sessionID reads and canonicalises the :id path parameter.
func sessionID(c *gin.Context) (string, bool) {
	raw := strings.ToLower(c.Param("id"))
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		badRequest(c, "invalid session id")
		return "", false
	}
	return raw, true
}

func caller(c *gin.Context) (string, bool) {
	address, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "Unauthenticated"})
		return "", false
	}
	return address, true
}

// CreateSession creates a session owned by the caller
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	address, ok := caller(c)
	if !ok {
		return
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// JoinSession
// POST /api/sessions/:id/join
func (h *SessionHandler) JoinSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	session, err := h.sessionService.JoinSession(c.Request.Context(), id, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// StartSession
// POST /api/sessions/:id/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	session, err := h.sessionService.StartSession(c.Request.Context(), id, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PlaceVote places an audience stake. amount and value are base-unit
// integers as strings; vote_type is a name or its 0..4 code.
// POST /api/sessions/:id/votes
func (h *SessionHandler) PlaceVote(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	var req models.PlaceVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	voteType, err := models.ParseVoteType(req.VoteType)
	if err != nil {
		writeError(c, err)
		return
	}

	declared := decimal.Zero
	if req.Amount != "" {
		declared, err = decimal.NewFromString(req.Amount)
		if err != nil {
			badRequest(c, "invalid amount")
			return
		}
	}
	transferred, err := decimal.NewFromString(req.Value)
	if err != nil {
		badRequest(c, "invalid value")
		return
	}

	vote, err := h.sessionService.PlaceAudienceVote(c.Request.Context(), id, address, voteType, declared, transferred, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, vote)
}

// MoveToPhase2
// POST /api/sessions/:id/phase2
func (h *SessionHandler) MoveToPhase2(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	session, err := h.sessionService.MoveToPhase2(c.Request.Context(), id, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PlayerVote
// POST /api/sessions/:id/player-vote
func (h *SessionHandler) PlayerVote(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	var req models.PlayerVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	session, err := h.sessionService.PlayerVote(c.Request.Context(), id, address, *req.VoteYes)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ResolveSession
// POST /api/sessions/:id/resolve
func (h *SessionHandler) ResolveSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	session, err := h.sessionService.ResolveSession(c.Request.Context(), id, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ClaimWinnings
// POST /api/sessions/:id/claim
func (h *SessionHandler) ClaimWinnings(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	address, ok := caller(c)
	if !ok {
		return
	}

	amount, err := h.sessionService.ClaimWinnings(c.Request.Context(), id, address)
	if errors.Is(err, models.ErrSettlementPending) {
		c.JSON(http.StatusAccepted, gin.H{
			"session_id": id,
			"claimer":    address,
			"amount":     amount,
			"status":     models.TransactionStatusPending,
		})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"claimer":    address,
		"amount":     amount,
		"status":     models.TransactionStatusSettled,
	})
}

// GetSession
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetSessionVotes
// GET /api/sessions/:id/votes
func (h *SessionHandler) GetSessionVotes(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	votes, err := h.sessionService.GetSessionVotes(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

// GetParticipantCount
// GET /api/sessions/:id/participants/count
func (h *SessionHandler) GetParticipantCount(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	count, err := h.sessionService.GetParticipantCount(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetSessionTransactions
// GET /api/sessions/:id/transactions
func (h *SessionHandler) GetSessionTransactions(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	transactions, err := h.sessionService.GetSessionTransactions(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// GetSessionEvents replays the notification log
// GET /api/sessions/:id/events?after=&limit=
func (h *SessionHandler) GetSessionEvents(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		badRequest(c, "invalid after")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		badRequest(c, "invalid limit")
		return
	}

	evts, err := h.sessionService.GetSessionEvents(c.Request.Context(), id, after, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": evts})
}

// GetPosition
// GET /api/sessions/:id/positions/:address
func (h *SessionHandler) GetPosition(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	address := c.Param("address")
	if common.IsHexAddress(address) {
		address = common.HexToAddress(address).Hex()
	}

	position, err := h.sessionService.GetPosition(c.Request.Context(), id, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, position)
}

// StreamSession upgrades to a websocket that receives the session's events
// GET /ws/sessions/:id
func (h *SessionHandler) StreamSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if _, err := h.sessionService.GetSession(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, id); err != nil {
		log.Debug().Err(err).Str("session_id", id).Msg("websocket upgrade failed")
	}
}
