// Package access orchestrates the checkpoint write path: attendance
// append, decision amendment, and the presence reconciliation that
// follows both. The attendance write always commits first; presence
// reconciliation failures are queued for the background reconciler
// instead of being dropped.
package access

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"campus-access-backend/internal/decision"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/store"
)

// DefaultStorageTimeout bounds individual storage operations.
const DefaultStorageTimeout = 5 * time.Second

// Service wires the event store, the correction-window policy and the
// presence tracker together.
type Service struct {
	store   store.Store
	tracker *presence.Tracker
	window  decision.Window
	timeout time.Duration
}

// NewService creates the orchestration service. timeout <= 0 selects
// DefaultStorageTimeout.
func NewService(s store.Store, t *presence.Tracker, w decision.Window, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return &Service{store: s, tracker: t, window: w, timeout: timeout}
}

// IsRetryable reports whether err is a transient storage failure that
// the caller may retry, as opposed to a semantic outcome. A timed-out
// write must not be read as proof the write never happened.
func IsRetryable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// RecordScan appends the attendance record and reconciles the presence
// view. Semantic presence conflicts (ErrAlreadyInside, ErrNotInside)
// are returned to the caller; any other reconciliation failure is
// queued for retry and the scan still succeeds, since the attendance
// record is the source of truth.
func (s *Service) RecordScan(ctx context.Context, rec *model.AttendanceRecord) (*model.AttendanceRecord, error) {
	appendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Append(appendCtx, rec); err != nil {
		return nil, err
	}

	if rec.State == model.StateDenied {
		return rec, nil
	}

	if err := s.reconcileScan(ctx, rec); err != nil {
		if errors.Is(err, presence.ErrAlreadyInside) || errors.Is(err, presence.ErrNotInside) {
			return rec, err
		}
		s.queueReconcile(rec, scanReconcileKind(rec), err)
	}
	return rec, nil
}

// AmendDecision changes an attendance record's authorization state
// within the correction window, then re-reconciles presence for entry
// records.
func (s *Service) AmendDecision(ctx context.Context, id, state string, reason *string) (*model.AttendanceRecord, error) {
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, err := s.store.GetByID(loadCtx, id)
	if err != nil {
		return nil, err
	}

	// A same-state amendment has nothing to apply. Returning the record
	// untouched keeps DecisionAt intact, so repeating a denial cannot
	// extend the reversal window.
	if rec.State == state {
		return rec, nil
	}

	now := time.Now().UTC()
	if err := s.window.Check(rec.Timestamp, rec.DecisionAt, rec.State, state, now); err != nil {
		return nil, err
	}

	amendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	amended, err := s.store.Amend(amendCtx, id, state, reason, now)
	if err != nil {
		return nil, err
	}

	if amended.IsEntry() {
		if err := s.reconcileAmendment(ctx, amended, now); err != nil {
			s.queueReconcile(amended, amendReconcileKind(state), err)
		}
	}
	return amended, nil
}

func (s *Service) reconcileScan(ctx context.Context, rec *model.AttendanceRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if rec.IsEntry() {
		person, err := s.lookupPerson(opCtx, rec)
		if err != nil {
			return err
		}
		_, err = s.tracker.OnEntryAuthorized(opCtx, person, rec.Checkpoint, rec.GuardID, rec.Timestamp)
		return err
	}
	_, err := s.tracker.OnExitAuthorized(opCtx, rec.NationalID, rec.Checkpoint, rec.GuardID, rec.Timestamp)
	return err
}

func (s *Service) reconcileAmendment(ctx context.Context, rec *model.AttendanceRecord, now time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch rec.State {
	case model.StateDenied:
		_, err := s.tracker.OnEntryDenied(opCtx, rec.NationalID, rec.GuardID, now)
		return err
	case model.StateAuthorized:
		_, err := s.tracker.OnEntryReauthorized(opCtx, rec)
		return err
	}
	return nil
}

// lookupPerson resolves the scanned person in the directory, falling
// back to the identity carried on the scan itself for people the
// directory does not know yet.
func (s *Service) lookupPerson(ctx context.Context, rec *model.AttendanceRecord) (*model.Person, error) {
	person, err := s.store.FindPerson(ctx, rec.NationalID)
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

// queueReconcile persists a pending reconciliation marker. Uses a
// background context: the task must outlive a caller that gave up.
func (s *Service) queueReconcile(rec *model.AttendanceRecord, kind string, cause error) {
	task := &model.ReconcileTask{
		AttendanceID: rec.ID,
		Kind:         kind,
		LastError:    cause.Error(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.store.DB().WithContext(ctx).Create(task).Error; err != nil {
		log.Printf("Failed to queue presence reconciliation for attendance %s: %v (original: %v)",
			rec.ID, err, cause)
		return
	}
	log.Printf("Queued presence reconciliation %s for attendance %s: %v", kind, rec.ID, cause)
}

func scanReconcileKind(rec *model.AttendanceRecord) string {
	if rec.IsEntry() {
		return model.ReconcileEntryAuthorized
	}
	return model.ReconcileExitAuthorized
}

func amendReconcileKind(state string) string {
	if state == model.StateDenied {
		return model.ReconcileEntryDenied
	}
	return model.ReconcileEntryReauth
}
