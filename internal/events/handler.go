package events

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	hub     *Hub
}

func NewHandler(service *Service, hub *Hub) *Handler {
	return &Handler{service: service, hub: hub}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	ev := rg.Group("/events")
	{
		ev.GET("/ws", h.Subscribe)
		ev.GET("/recent", h.Recent)
	}
}

// Subscribe upgrades the request to a websocket event stream.
func (h *Handler) Subscribe(c *gin.Context) {
	h.hub.HandleConnection(c.Writer, c.Request)
}

// Recent returns the newest notifications, a polling fallback for
// consumers that missed stream messages.
func (h *Handler) Recent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	evs, err := h.service.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
