package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetPresence handles GET /api/presence: everyone currently inside.
func (h *Handler) GetPresence(c *gin.Context) {
	recs, err := h.tracker.CurrentlyInside(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetPresenceHistory handles GET /api/presence/history.
func (h *Handler) GetPresenceHistory(c *gin.Context) {
	recs, err := h.tracker.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

// GetLongStay handles GET /api/presence/long-stay: open presences older
// than the threshold (hours query parameter, default 8).
func (h *Handler) GetLongStay(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "8"))
	if err != nil || hours <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
		return
	}

	recs, err := h.tracker.LongStay(c.Request.Context(), time.Duration(hours)*time.Hour, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}
