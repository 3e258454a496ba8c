package mw

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterThrottlesAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		r.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	assert.Equal(t, http.StatusOK, statuses[0])
	assert.Equal(t, http.StatusOK, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
}

func TestCacheServesRepeatedGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := cache.New(time.Minute, time.Minute)

	hits := 0
	r := gin.New()
	r.GET("/counted", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.String(http.StatusOK, fmt.Sprintf("hit %d", hits))
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/counted", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "hit 1", w.Body.String())
	}
	assert.Equal(t, 1, hits)
}

func TestCacheSkipsFailedResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := cache.New(time.Minute, time.Minute)

	hits := 0
	r := gin.New()
	r.GET("/flaky", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		if hits == 1 {
			c.String(http.StatusInternalServerError, "boom")
			return
		}
		c.String(http.StatusOK, "recovered")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/flaky", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/flaky", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "recovered", w.Body.String())
}
