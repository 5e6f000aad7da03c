// Package handler exposes the ledger over HTTP with gin. Routing, identity
// middleware, and error-to-status mapping live here; the rules themselves
// live in internal/ledger.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/goalstash/goalstash/internal/identity"
	"github.com/goalstash/goalstash/internal/ledger"
)

// LedgerHandler exposes the goal and money endpoints.
type LedgerHandler struct {
	svc    *ledger.Service
	logger *zap.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(svc *ledger.Service, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, logger: logger}
}

// Register mounts the ledger routes on the given router group. The group is
// expected to carry identity.RequireAccount already.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.PUT("/goal", h.SetGoal)
	rg.GET("/goal", h.Goal)
	rg.POST("/deposits", h.AddMoney)
	rg.POST("/withdrawals", h.Withdraw)
	rg.GET("/balance", h.Balance)
}

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// SetGoal handles PUT /goal — declares or raises the caller's goal.
func (h *LedgerHandler) SetGoal(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.SetGoal(c.Request.Context(), account, req.Amount); err != nil {
		RecordLedgerOp("set_goal", false)
		h.writeError(c, err)
		return
	}
	RecordLedgerOp("set_goal", true)

	c.JSON(http.StatusOK, gin.H{
		"account": account,
		"goal":    req.Amount,
	})
}

// AddMoney handles POST /deposits — admits the attached payment in full.
func (h *LedgerHandler) AddMoney(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.svc.AddMoney(c.Request.Context(), account, req.Amount)
	if err != nil {
		RecordLedgerOp("add_money", false)
		h.writeError(c, err)
		return
	}
	RecordLedgerOp("add_money", true)

	c.JSON(http.StatusCreated, gin.H{
		"account": account,
		"amount":  req.Amount,
		"balance": balance,
	})
}

// Withdraw handles POST /withdrawals — pays out the full balance once the
// goal is reached and closes the account.
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	account := identity.AccountFromCtx(c)

	amount, err := h.svc.Withdraw(c.Request.Context(), account)
	if err != nil {
		RecordLedgerOp("withdraw", false)
		h.writeError(c, err)
		return
	}
	RecordLedgerOp("withdraw", true)

	c.JSON(http.StatusOK, gin.H{
		"account": account,
		"amount":  amount,
	})
}

// Balance handles GET /balance.
func (h *LedgerHandler) Balance(c *gin.Context) {
	h.read(c, "balance", h.svc.Balance)
}

// Goal handles GET /goal.
func (h *LedgerHandler) Goal(c *gin.Context) {
	h.read(c, "goal", h.svc.Goal)
}

// read serves both query endpoints. The optional "value" query parameter
// models value attached to the call; reads must carry none.
func (h *LedgerHandler) read(c *gin.Context, field string, query func(ctx context.Context, caller string, attached int64) (int64, error)) {
	account := identity.AccountFromCtx(c)

	var attached int64
	if raw := c.Query("value"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be an integer"})
			return
		}
		attached = v
	}

	n, err := query(c.Request.Context(), account, attached)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": account,
		field:     n,
	})
}

// writeError maps ledger errors to HTTP statuses.
func (h *LedgerHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidGoalUpdate),
		errors.Is(err, ledger.ErrDepositNotAdmissible),
		errors.Is(err, ledger.ErrWithdrawalNotEligible):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidQueryPayment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("ledger operation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger unavailable"})
	}
}
