package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	escrow *Escrow
}

func NewHandler(escrow *Escrow) *Handler {
	return &Handler{escrow: escrow}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	pay := rg.Group("/payments")
	{
		pay.POST("/deposit", h.Deposit)
		pay.POST("/transfer", h.Transfer)
		pay.GET("/balance", h.Balance)
	}
}

type depositRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// Deposit credits the caller's escrow account. In production this sits
// behind a payment provider callback; here the deposit itself is trusted.
func (h *Handler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	if err := h.escrow.Deposit(caller, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": h.escrow.Balance(caller)})
}

type transferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// Transfer moves funds from the caller's account to another address.
func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	if err := h.escrow.Transfer(caller, req.To, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": h.escrow.Balance(caller)})
}

func (h *Handler) Balance(c *gin.Context) {
	caller := c.GetString("caller")
	c.JSON(http.StatusOK, gin.H{"balance": h.escrow.Balance(caller)})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrBalanceOverflow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
