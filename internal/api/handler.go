package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/access"
	"campus-access-backend/internal/decision"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/session"
	"campus-access-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	service  *access.Service
	tracker  *presence.Tracker
	sessions *session.Manager
	webpush  *webpush.Options
	loc      *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *access.Service, t *presence.Tracker, m *session.Manager, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:    s,
		service:  svc,
		tracker:  t,
		sessions: m,
		webpush:  webpushOptions,
		loc:      loc,
	}
}

// respondError maps core errors onto HTTP responses. Semantic outcomes
// get their own statuses; transient storage failures come back 503 so
// clients know a retry is legitimate.
func respondError(c *gin.Context, err error) {
	var (
		validation *store.ValidationError
		expired    *decision.WindowExpiredError
		busy       *session.CheckpointBusyError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, store.ErrUnassignedGuard):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &expired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "correction window expired",
			"message":  expired.Error(),
			"deadline": expired.Deadline,
		})
	case errors.Is(err, presence.ErrAlreadyInside), errors.Is(err, presence.ErrNotInside):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &busy):
		c.JSON(http.StatusConflict, gin.H{
			"error":        "another guard is active at this checkpoint",
			"conflict":     true,
			"active_guard": busy,
		})
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case access.IsRetryable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage timeout, retry the request"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
