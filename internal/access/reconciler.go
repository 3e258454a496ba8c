package access

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/store"
)

// DefaultReconcileInterval is how often pending tasks are replayed.
const DefaultReconcileInterval = 30 * time.Second

const reconcileBatchSize = 50

// Reconciler replays queued presence reconciliations until the derived
// view converges with the attendance log.
type Reconciler struct {
	store    store.Store
	tracker  *presence.Tracker
	interval time.Duration
}

// NewReconciler creates a Reconciler. interval <= 0 selects
// DefaultReconcileInterval.
func NewReconciler(s store.Store, t *presence.Tracker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{store: s, tracker: t, interval: interval}
}

// Run drains the pending queue on a fixed interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	log.Println("Starting presence reconciler...")

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Presence reconciler shutting down.")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce replays one batch of pending tasks. Tasks that converge, and
// tasks whose replay hits a semantic presence conflict (the view
// already moved on), are removed; everything else stays queued with an
// incremented attempt count.
func (r *Reconciler) RunOnce(ctx context.Context) {
	db := r.store.DB().WithContext(ctx)

	var tasks []model.ReconcileTask
	if err := db.Order("id ASC").Limit(reconcileBatchSize).Find(&tasks).Error; err != nil {
		log.Printf("Reconciler: failed to load pending tasks: %v", err)
		return
	}

	for _, task := range tasks {
		err := r.replay(ctx, task)
		if err == nil || errors.Is(err, presence.ErrAlreadyInside) || errors.Is(err, presence.ErrNotInside) {
			if derr := db.Delete(&model.ReconcileTask{}, task.ID).Error; derr != nil {
				log.Printf("Reconciler: failed to remove task %d: %v", task.ID, derr)
			}
			continue
		}

		log.Printf("Reconciler: task %d (%s, attendance %s) failed again: %v",
			task.ID, task.Kind, task.AttendanceID, err)
		if uerr := db.Model(&model.ReconcileTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]any{
				"attempts":   task.Attempts + 1,
				"last_error": err.Error(),
			}).Error; uerr != nil {
			log.Printf("Reconciler: failed to update task %d: %v", task.ID, uerr)
		}
	}
}

func (r *Reconciler) replay(ctx context.Context, task model.ReconcileTask) error {
	rec, err := r.store.GetByID(ctx, task.AttendanceID)
	if err != nil {
		return err
	}

	switch task.Kind {
	case model.ReconcileEntryAuthorized:
		person, err := r.lookupPerson(ctx, rec)
		if err != nil {
			return err
		}
		_, err = r.tracker.OnEntryAuthorized(ctx, person, rec.Checkpoint, rec.GuardID, rec.Timestamp)
		return err
	case model.ReconcileExitAuthorized:
		_, err := r.tracker.OnExitAuthorized(ctx, rec.NationalID, rec.Checkpoint, rec.GuardID, rec.Timestamp)
		return err
	case model.ReconcileEntryDenied:
		at := rec.Timestamp
		if rec.DecisionAt != nil {
			at = *rec.DecisionAt
		}
		_, err := r.tracker.OnEntryDenied(ctx, rec.NationalID, rec.GuardID, at)
		return err
	case model.ReconcileEntryReauth:
		_, err := r.tracker.OnEntryReauthorized(ctx, rec)
		return err
	}

	log.Printf("Reconciler: dropping task %d with unknown kind %q", task.ID, task.Kind)
	return nil
}

func (r *Reconciler) lookupPerson(ctx context.Context, rec *model.AttendanceRecord) (*model.Person, error) {
	person, err := r.store.FindPerson(ctx, rec.NationalID)
	if err == nil {
		return person, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &model.Person{
		NationalID:     rec.NationalID,
		UniversityCode: rec.UniversityCode,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		FacultyCode:    rec.FacultyCode,
		SchoolCode:     rec.SchoolCode,
	}, nil
}
