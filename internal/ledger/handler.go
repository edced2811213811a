package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carbontwin/ledger-backend/internal/metrics"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	ledger := rg.Group("/ledger")
	{
		ledger.POST("/reports", h.CreateReport)
		ledger.GET("/reports", h.ListReports)
		ledger.GET("/reports/count", h.ReportCount)
		ledger.GET("/reports/:id", h.GetReport)
		ledger.POST("/reports/:id/verify", h.VerifyReport)
		ledger.GET("/scores/:company", h.GetScore)
		ledger.POST("/verifiers", h.AddVerifier)
		ledger.DELETE("/verifiers/:address", h.RemoveVerifier)
		ledger.GET("/verifiers/:address", h.CheckVerifier)
	}
}

type createReportRequest struct {
	FacilityID       string   `json:"facility_id" binding:"required"`
	EmissionAmount   uint64   `json:"emission_amount"`
	ProductionVolume uint64   `json:"production_volume"`
	EnergySources    []string `json:"energy_sources"`
	DataRef          string   `json:"data_ref"`
}

func (h *Handler) CreateReport(c *gin.Context) {
	var req createReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	company := c.GetString("caller")
	id, err := h.service.ReportEmissions(c.Request.Context(), company, req.FacilityID,
		req.EmissionAmount, req.ProductionVolume, req.EnergySources, req.DataRef)
	metrics.RecordOperation("report_emissions", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"report_id": id})
}

type verifyReportRequest struct {
	Score  *int `json:"score" binding:"required"`
	Passed bool `json:"passed"`
}

func (h *Handler) VerifyReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	var req verifyReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verifier := c.GetString("caller")
	err = h.service.VerifyEmissionReport(c.Request.Context(), verifier, id, *req.Score, req.Passed)
	metrics.RecordOperation("verify_report", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

func (h *Handler) GetReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	report, err := h.service.Report(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListReports(c *gin.Context) {
	company := c.Query("company")
	if company == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company query parameter is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report_ids": h.service.ReportIDsByCompany(company)})
}

func (h *Handler) ReportCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.service.ReportCount()})
}

func (h *Handler) GetScore(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"company": c.Param("company"),
		"score":   h.service.CompanyScore(c.Param("company")),
	})
}

type verifierRequest struct {
	Address string `json:"address" binding:"required"`
}

func (h *Handler) AddVerifier(c *gin.Context) {
	var req verifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	err := h.service.AddVerifier(c.Request.Context(), caller, req.Address)
	metrics.RecordOperation("add_verifier", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (h *Handler) RemoveVerifier(c *gin.Context) {
	caller := c.GetString("caller")
	err := h.service.RemoveVerifier(c.Request.Context(), caller, c.Param("address"))
	metrics.RecordOperation("remove_verifier", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) CheckVerifier(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authorized": h.service.IsVerifier(c.Param("address"))})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrNotAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrScoreOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
