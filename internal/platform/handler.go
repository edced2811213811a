package platform

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/summary", h.Summary)
	rg.GET("/summary/latest", h.LatestSnapshot)
	rg.POST("/summary/snapshot", h.Snapshot)
}

func (h *Handler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Summary())
}

// LatestSnapshot serves the newest journaled totals, the historical
// counterpart to the live /summary computation.
func (h *Handler) LatestSnapshot(c *gin.Context) {
	summary, err := h.service.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrNoSnapshots) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Snapshot journals the current totals on demand, alongside the periodic
// worker run.
func (h *Handler) Snapshot(c *gin.Context) {
	if err := h.service.Snapshot(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "snapshot saved"})
}
