package notification

import (
	"context"
	"log"
	"time"

	"campus-access-backend/internal/presence"
)

// DefaultLongStayThreshold flags people inside longer than this.
const DefaultLongStayThreshold = 8 * time.Hour

// DefaultCheckInterval is how often the checker scans for long stays.
const DefaultCheckInterval = 15 * time.Minute

// Checker periodically looks for open presence records older than the
// long-stay threshold and dispatches an alert for each, once per
// record.
type Checker struct {
	tracker   *presence.Tracker
	pool      *WorkerPool
	threshold time.Duration
	interval  time.Duration
}

// NewChecker creates a Checker. Non-positive threshold/interval select
// the defaults.
func NewChecker(tracker *presence.Tracker, pool *WorkerPool, threshold, interval time.Duration) *Checker {
	if threshold <= 0 {
		threshold = DefaultLongStayThreshold
	}
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Checker{tracker: tracker, pool: pool, threshold: threshold, interval: interval}
}

// Run starts the worker pool and the periodic check loop.
func (c *Checker) Run(ctx context.Context) {
	log.Println("Starting long-stay checker...")
	c.pool.Start(ctx)

	c.CheckOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Long-stay checker shutting down.")
			return
		case <-ticker.C:
			c.CheckOnce(ctx)
		}
	}
}

// CheckOnce dispatches alerts for newly flagged long stays.
func (c *Checker) CheckOnce(ctx context.Context) {
	now := time.Now().UTC()
	recs, err := c.tracker.LongStay(ctx, c.threshold, now)
	if err != nil {
		log.Printf("Long-stay check failed: %v", err)
		return
	}

	for _, rec := range recs {
		if rec.LongStayAlertedAt != nil {
			continue
		}
		c.pool.Dispatch(Alert{
			PresenceID: rec.ID,
			PersonName: rec.PersonName,
			Stay:       now.Sub(rec.EnteredAt),
		})
	}
}
