package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-access-backend/internal/db"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/store"
)

func setupSubscriptionRouter(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))

	handler := NewHandler(store.NewGormStore(testDB), nil, nil, nil, nil, time.UTC)
	r := gin.New()
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	return testDB, r
}

func TestPutSubscriptionRejectsBadBody(t *testing.T) {
	_, router := setupSubscriptionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionUpsertAndDelete(t *testing.T) {
	testDB, router := setupSubscriptionRouter(t)

	body := `{"endpoint":"https://push.example/ep-1","p256dh":"key-a","auth":"auth-a"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", strings.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// A second PUT for the same endpoint replaces the keys.
	body = `{"endpoint":"https://push.example/ep-1","p256dh":"key-b","auth":"auth-b"}`
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PUT", "/api/subscriptions", strings.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var subs []model.PushSubscription
	require.NoError(t, testDB.Find(&subs).Error)
	require.Len(t, subs, 1)
	assert.Equal(t, "key-b", subs[0].P256DH)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/subscriptions?endpoint=https://push.example/ep-1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/subscriptions", strings.NewReader(`{"endpoint":"https://push.example/ep-1"}`))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	testDB.Model(&model.PushSubscription{}).Count(&count)
	assert.Zero(t, count)
}
