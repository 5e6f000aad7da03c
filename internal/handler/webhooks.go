package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goalstash/goalstash/internal/identity"
	"github.com/goalstash/goalstash/internal/webhooks"
)

// WebhookHandler exposes webhook subscription management.
type WebhookHandler struct {
	svc    *webhooks.Service
	logger *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(svc *webhooks.Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, logger: logger}
}

// Register mounts the webhook routes on the given router group. The group is
// expected to carry identity.RequireAccount already.
func (h *WebhookHandler) Register(rg *gin.RouterGroup) {
	w := rg.Group("/webhooks")
	{
		w.POST("", h.Subscribe)
		w.GET("", h.List)
		w.DELETE("/:id", h.Unsubscribe)
	}
}

// Subscribe handles POST /webhooks — creates a subscription for the caller.
// The response is the only place the signing secret is revealed.
func (h *WebhookHandler) Subscribe(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	var req webhooks.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), account, &req)
	if err != nil {
		h.logger.Error("create webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
	})
}

// List handles GET /webhooks — lists the caller's subscriptions.
func (h *WebhookHandler) List(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	subs, err := h.svc.ListByAccount(c.Request.Context(), account)
	if err != nil {
		h.logger.Error("list webhook subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []*webhooks.Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// Unsubscribe handles DELETE /webhooks/:id.
func (h *WebhookHandler) Unsubscribe(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	switch err := h.svc.Unsubscribe(c.Request.Context(), account, id); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "subscription deleted"})
	case errors.Is(err, webhooks.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, webhooks.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not your subscription"})
	default:
		h.logger.Error("delete webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
	}
}
