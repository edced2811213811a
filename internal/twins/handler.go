package twins

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"carbontwin/ledger-backend/internal/metrics"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	twins := rg.Group("/twins")
	{
		twins.POST("", h.Create)
		twins.GET("/count", h.Count)
		twins.GET("/:id", h.Get)
		twins.PUT("/:id/emissions", h.Update)
		twins.GET("/owners/:owner", h.ListByOwner)
	}
}

type createTwinRequest struct {
	TwinID            string         `json:"twin_id" binding:"required"`
	FacilityType      string         `json:"facility_type"`
	BaselineEmissions uint64         `json:"baseline_emissions"`
	DataRef           string         `json:"data_ref"`
	Metadata          datatypes.JSON `json:"metadata"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createTwinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	err := h.service.CreateDigitalTwin(c.Request.Context(), caller, req.TwinID,
		req.FacilityType, req.BaselineEmissions, req.DataRef, req.Metadata)
	metrics.RecordOperation("create_twin", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"twin_id": req.TwinID})
}

type updateTwinRequest struct {
	NewEmissions *uint64 `json:"new_emissions" binding:"required"`
}

func (h *Handler) Update(c *gin.Context) {
	var req updateTwinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := c.GetString("caller")
	err := h.service.UpdateDigitalTwin(c.Request.Context(), caller, c.Param("id"), *req.NewEmissions)
	metrics.RecordOperation("update_twin", metrics.Outcome(err))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) Get(c *gin.Context) {
	twin, err := h.service.Twin(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, twin)
}

func (h *Handler) ListByOwner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"twin_ids": h.service.TwinIDsByOwner(c.Param("owner"))})
}

func (h *Handler) Count(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.service.TwinCount()})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTwinNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrTwinExists), errors.Is(err, ErrTwinInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
