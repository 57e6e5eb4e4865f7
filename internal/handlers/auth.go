package handlers

import (
	"errors"
	"net/http"

	"vibefi/internal/auth"
	"vibefi/internal/models"
	"vibefi/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// LoginMessage issues a single-use login challenge for a wallet
// GET /auth/message?address=...&chain=evm|solana
func (h *AuthHandler) LoginMessage(c *gin.Context) {
	chain, address, ok := walletFromRequest(c, c.Query("chain"), c.Query("address"))
	if !ok {
		return
	}

	message, expiresAt, err := h.authService.IssueLoginChallenge(c.Request.Context(), chain, address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    message,
		"address":    address,
		"expires_at": expiresAt,
	})
}

// WalletLogin authenticates a wallet by its signature of the challenge
// issued by LoginMessage. EVM wallets sign with personal_sign; Solana
// wallets with ed25519.
// POST /auth/wallet
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req models.WalletLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidRequest"})
		return
	}

	chain, address, ok := walletFromRequest(c, req.Chain, req.WalletAddress)
	if !ok {
		return
	}

	user, err := h.authService.Login(c.Request.Context(), chain, address, req.Signature)
	switch {
	case errors.Is(err, models.ErrInvalidAddress):
		writeError(c, err)
		return
	case errors.Is(err, auth.ErrInvalidSignature), errors.Is(err, models.ErrLoginChallenge):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "Unauthenticated"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate", "code": "Internal"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.WalletAddress, string(user.Chain))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token", "code": "Internal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

func walletFromRequest(c *gin.Context, rawChain, rawAddress string) (models.WalletChain, string, bool) {
	chain, err := auth.ParseChain(rawChain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "InvalidRequest"})
		return "", "", false
	}
	address, err := auth.NormalizeAddress(chain, rawAddress)
	if err != nil {
		writeError(c, err)
		return "", "", false
	}
	return chain, address, true
}

// Logout handles user logout (stateless JWT, client-side only)
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

// GetMe returns the currently authenticated user's profile
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "Unauthenticated"})
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "code": "NotFound"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}
