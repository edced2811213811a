package credits

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carbontwin/ledger-backend/internal/metrics"
	"carbontwin/ledger-backend/internal/payments"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	credits := rg.Group("/credits")
	{
		credits.POST("", h.Mint)
		credits.GET("", h.ListActive)
		credits.GET("/count", h.Count)
		credits.GET("/:id", h.Get)
		credits.POST("/:id/trade", h.Trade)
		credits.POST("/:id/retire", h.Retire)
		credits.GET("/holdings/:owner", h.Holdings)
	}
}

type mintRequest struct {
	Amount            uint64 `json:"amount"`
	PricePerTon       uint64 `json:"price_per_ton"`
	CertificationHash string `json:"certification_hash"`
	ProjectDetails    string `json:"project_details"`
	Vintage           int    `json:"vintage" binding:"required"`
	CreditType        string `json:"credit_type" binding:"required"`
}

func (h *Handler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	id, err := h.service.MintCarbonCredit(c.Request.Context(), caller, req.Amount, req.PricePerTon,
		req.CertificationHash, req.ProjectDetails, req.Vintage, req.CreditType)
	metrics.RecordOperation("mint_credit", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"credit_id": id})
}

type tradeRequest struct {
	Amount  uint64 `json:"amount"`
	Payment uint64 `json:"payment"`
}

func (h *Handler) Trade(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyer := c.GetString("caller")
	err = h.service.TradeCarbonCredit(c.Request.Context(), buyer, id, req.Amount, req.Payment)
	metrics.RecordOperation("trade_credit", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "traded"})
}

func (h *Handler) Retire(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return
	}

	caller := c.GetString("caller")
	err = h.service.RetireCarbonCredit(c.Request.Context(), caller, id)
	metrics.RecordOperation("retire_credit", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "retired"})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
		return
	}

	credit, err := h.service.Credit(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, credit)
}

func (h *Handler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credits": h.service.ListActive()})
}

func (h *Handler) Holdings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credit_ids": h.service.CreditIDsByOwner(c.Param("owner"))})
}

func (h *Handler) Count(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.service.CreditCount()})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCreditNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCreditRetired), errors.Is(err, ErrSelfTrade), errors.Is(err, ErrReentrantCall):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidVintage),
		errors.Is(err, ErrInvalidCreditType), errors.Is(err, ErrInsufficientAmount),
		errors.Is(err, ErrInsufficientPayment), errors.Is(err, payments.ErrBalanceOverflow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
