package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-access-backend/internal/db"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		sqlDB, _ := gdb.DB()
		sqlDB.Close()
	})
	return gdb
}

func response(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_SendsAlertAndMarksRecord(t *testing.T) {
	gdb := openTestDB(t)
	tracker := presence.NewTracker(gdb)
	wp := NewWorkerPool(1, gdb, tracker, &webpush.Options{})

	require.NoError(t, gdb.Create(&model.PushSubscription{
		Endpoint: "https://example.com/push",
		P256DH:   "test_p256dh",
		Auth:     "test_auth",
	}).Error)

	rec := &model.PresenceRecord{
		ID:         "presence-1",
		NationalID: "70123456",
		PersonName: "Maria Quispe",
		EnteredAt:  time.Now().UTC().Add(-9 * time.Hour),
		Inside:     true,
	}
	require.NoError(t, gdb.Create(rec).Error)

	var wg sync.WaitGroup
	wg.Add(1)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "https://example.com/push", sub.Endpoint)
			assert.Contains(t, string(payload), "Maria Quispe")
			wg.Done()
			return response(http.StatusCreated), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(Alert{PresenceID: rec.ID, PersonName: rec.PersonName, Stay: 9 * time.Hour})
	wg.Wait()

	require.Eventually(t, func() bool {
		var reloaded model.PresenceRecord
		if err := gdb.First(&reloaded, "id = ?", rec.ID).Error; err != nil {
			return false
		}
		return reloaded.LongStayAlertedAt != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	gdb := openTestDB(t)
	tracker := presence.NewTracker(gdb)
	wp := NewWorkerPool(1, gdb, tracker, &webpush.Options{})

	require.NoError(t, gdb.Create(&model.PushSubscription{
		Endpoint: "https://example.com/expired",
		P256DH:   "p",
		Auth:     "a",
	}).Error)
	require.NoError(t, gdb.Create(&model.PresenceRecord{
		ID:         "presence-2",
		NationalID: "70999999",
		PersonName: "Ana Torres",
		EnteredAt:  time.Now().UTC().Add(-10 * time.Hour),
		Inside:     true,
	}).Error)

	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return response(http.StatusGone), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(Alert{PresenceID: "presence-2", PersonName: "Ana Torres", Stay: 10 * time.Hour})

	require.Eventually(t, func() bool {
		var count int64
		if err := gdb.Model(&model.PushSubscription{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestChecker_DispatchesOnlyUnalertedLongStays(t *testing.T) {
	gdb := openTestDB(t)
	tracker := presence.NewTracker(gdb)
	wp := NewWorkerPool(2, gdb, tracker, &webpush.Options{})
	checker := NewChecker(tracker, wp, 8*time.Hour, time.Minute)

	now := time.Now().UTC()
	alerted := now.Add(-time.Hour)
	records := []model.PresenceRecord{
		{ID: "p-long", NationalID: "1", PersonName: "Long Stay", EnteredAt: now.Add(-9 * time.Hour), Inside: true},
		{ID: "p-short", NationalID: "2", PersonName: "Short Stay", EnteredAt: now.Add(-time.Hour), Inside: true},
		{ID: "p-done", NationalID: "3", PersonName: "Already Alerted", EnteredAt: now.Add(-12 * time.Hour), Inside: true, LongStayAlertedAt: &alerted},
	}
	for i := range records {
		require.NoError(t, gdb.Create(&records[i]).Error)
	}

	// Workers are not started: dispatched jobs stay in the channel.
	checker.CheckOnce(context.Background())

	select {
	case alert := <-wp.jobs:
		assert.Equal(t, "p-long", alert.PresenceID)
	default:
		t.Fatal("expected an alert for the long stay")
	}

	select {
	case alert := <-wp.jobs:
		t.Fatalf("unexpected extra alert for presence %s", alert.PresenceID)
	default:
	}
}
