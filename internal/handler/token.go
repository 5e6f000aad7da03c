package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalstash/goalstash/internal/identity"
)

// TokenHandler mints account tokens. Minting is guarded by an operator
// secret so only the deployment operator can hand out identities.
type TokenHandler struct {
	tokens     *identity.TokenIssuer
	secretHash []byte // bcrypt hash of the operator secret
	logger     *zap.Logger
}

// NewTokenHandler creates a TokenHandler. secretHash is the bcrypt hash of
// the operator secret from configuration.
func NewTokenHandler(tokens *identity.TokenIssuer, secretHash []byte, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, secretHash: secretHash, logger: logger}
}

// Register mounts the token routes on the given router group.
func (h *TokenHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/tokens", h.Mint)
	rg.GET("/tokens/key", h.PublicKey)
}

type mintRequest struct {
	Account        string `json:"account"         binding:"required"`
	OperatorSecret string `json:"operator_secret" binding:"required"`
}

// Mint handles POST /tokens — issues a bearer token for an account identity.
//
//	Response:
//	  {"token":"...", "token_type":"Bearer", "expires_in":3600}
func (h *TokenHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.secretHash, []byte(req.OperatorSecret)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator secret"})
		return
	}

	token, err := h.tokens.Issue(req.Account)
	if err != nil {
		h.logger.Error("issue account token", zap.String("account", req.Account), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Info("account token issued", zap.String("account", req.Account))

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.tokens.TTL().Seconds()),
	})
}

// PublicKey handles GET /tokens/key — returns the token verification key in
// PEM format so external services can verify tokens offline.
func (h *TokenHandler) PublicKey(c *gin.Context) {
	pemStr, err := h.tokens.PublicKeyPEM()
	if err != nil {
		h.logger.Error("marshal public key", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode public key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": pemStr})
}
