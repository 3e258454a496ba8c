package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/session"
)

type sessionStartRequest struct {
	GuardID    string             `json:"guard_id" binding:"required"`
	GuardName  string             `json:"guard_name" binding:"required"`
	Checkpoint string             `json:"checkpoint" binding:"required"`
	Device     session.DeviceInfo `json:"device"`
}

// PostSessionStart handles POST /api/sessions: a guard claims a
// checkpoint for their device.
func (h *Handler) PostSessionStart(c *gin.Context) {
	var req sessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.Start(c.Request.Context(), req.GuardID, req.GuardName, req.Checkpoint, req.Device)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// PutSessionHeartbeat handles PUT /api/sessions/:token/heartbeat.
func (h *Handler) PutSessionHeartbeat(c *gin.Context) {
	sess, err := h.sessions.Heartbeat(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// DeleteSession handles DELETE /api/sessions/:token: the guard releases
// their own session.
func (h *Handler) DeleteSession(c *gin.Context) {
	sess, err := h.sessions.Finalize(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type forceFinalizeRequest struct {
	AdminID string `json:"admin_id"`
}

// PostSessionForceFinalize handles POST /api/sessions/:token/force.
// Token "all" closes every active session. Intended for supervisors
// recovering from stuck guard devices.
func (h *Handler) PostSessionForceFinalize(c *gin.Context) {
	var req forceFinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	closed, err := h.sessions.ForceFinalize(c.Request.Context(), c.Param("token"), req.AdminID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

// GetActiveSessions handles GET /api/sessions: active sessions with the
// read-time staleness flag.
func (h *Handler) GetActiveSessions(c *gin.Context) {
	views, err := h.sessions.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}
