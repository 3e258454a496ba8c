package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Alert is one long-stay notification job.
type Alert struct {
	PresenceID string
	PersonName string
	Stay       time.Duration
}

// WorkerPool manages a pool of workers for sending long-stay alerts to
// all registered supervisor subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	tracker *presence.Tracker
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, tracker *presence.Tracker, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size),
		db:      db,
		tracker: tracker,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Alert worker %d processing presence %s", id, alert.PresenceID)
			wp.sendAlert(ctx, alert)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(alert Alert) {
	wp.jobs <- alert
}

// sendAlert fans the alert out to every registered subscription and
// marks the presence record as alerted.
func (wp *WorkerPool) sendAlert(ctx context.Context, alert Alert) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for presence %s: %v", alert.PresenceID, err)
		return
	}

	if len(subscriptions) > 0 {
		message := fmt.Sprintf("%s has been on campus for %s", alert.PersonName, alert.Stay.Round(time.Minute))
		log.Printf("Sending %d long-stay alerts for presence %s", len(subscriptions), alert.PresenceID)
		for _, sub := range subscriptions {
			wp.sendNotification(ctx, sub, []byte(message))
		}
	}

	if err := wp.tracker.MarkLongStayAlerted(ctx, alert.PresenceID, time.Now().UTC()); err != nil {
		log.Printf("Failed to mark presence %s as alerted: %v", alert.PresenceID, err)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
