package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"campus-access-backend/config"
	"campus-access-backend/internal/access"
	"campus-access-backend/internal/mw"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/session"
	"campus-access-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, s store.Store, svc *access.Service, tracker *presence.Tracker, sessions *session.Manager, webpushOptions *webpush.Options, loc *time.Location) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, svc, tracker, sessions, webpushOptions, loc)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/attendance", handler.PostScan)
		api.PUT("/attendance/:id/state", handler.PutScanState)
		api.GET("/attendance", caching, handler.GetAttendance)
		api.GET("/attendance/person/:nid", handler.GetPersonAttendance)
		api.GET("/attendance/person/:nid/last-type", handler.GetLastValidType)
		api.GET("/attendance/guard/:guard_id", handler.GetGuardAttendance)
		api.GET("/attendance/today", handler.GetTodayStats)

		api.GET("/presence", caching, handler.GetPresence)
		api.GET("/presence/history", handler.GetPresenceHistory)
		api.GET("/presence/long-stay", handler.GetLongStay)

		api.POST("/sessions", handler.PostSessionStart)
		api.GET("/sessions", handler.GetActiveSessions)
		api.PUT("/sessions/:token/heartbeat", handler.PutSessionHeartbeat)
		api.DELETE("/sessions/:token", handler.DeleteSession)
		api.POST("/sessions/:token/force", handler.PostSessionForceFinalize)

		api.GET("/people/:code", handler.GetPerson)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
