// Package presence keeps the derived "currently inside" view consistent
// with authorized attendance records.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-access-backend/internal/model"
)

var (
	// ErrAlreadyInside is returned when an authorized entry arrives for a
	// person who already has an open presence record.
	ErrAlreadyInside = errors.New("person is already inside the campus")

	// ErrNotInside is returned when an authorized exit arrives for a
	// person with no open presence record.
	ErrNotInside = errors.New("person is not registered as present")
)

// Tracker maintains the active presence set. Transitions for the same
// person are serialized through a per-person lock; the partial unique
// index over (national_id) WHERE inside backs the at-most-one-active
// invariant at the database level.
type Tracker struct {
	db    *gorm.DB
	locks *keyedLocks
}

// NewTracker creates a Tracker on top of the given database handle.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, locks: newKeyedLocks()}
}

// OnEntryAuthorized opens a presence record for the person. Fails with
// ErrAlreadyInside when an open record exists.
func (t *Tracker) OnEntryAuthorized(ctx context.Context, person *model.Person, checkpoint, guardID string, at time.Time) (*model.PresenceRecord, error) {
	l := t.locks.get(person.NationalID)
	l.Lock()
	defer l.Unlock()

	existing, err := t.findActive(ctx, person.NationalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyInside
	}

	rec := &model.PresenceRecord{
		ID:              uuid.NewString(),
		PersonID:        person.ID,
		NationalID:      person.NationalID,
		PersonName:      person.FullName(),
		Faculty:         person.FacultyCode,
		School:          person.SchoolCode,
		EnteredAt:       at,
		EntryCheckpoint: checkpoint,
		EntryGuardID:    guardID,
		Inside:          true,
	}
	if err := t.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to open presence record: %w", err)
	}
	return rec, nil
}

// OnExitAuthorized closes the person's open presence record, computing
// the stay duration. Fails with ErrNotInside when none is open.
func (t *Tracker) OnExitAuthorized(ctx context.Context, nationalID, checkpoint, guardID string, at time.Time) (*model.PresenceRecord, error) {
	l := t.locks.get(nationalID)
	l.Lock()
	defer l.Unlock()

	rec, err := t.findActive(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotInside
	}

	exitedAt := at
	rec.ExitedAt = &exitedAt
	rec.ExitCheckpoint = checkpoint
	rec.ExitGuardID = guardID
	rec.Inside = false
	// A backdated exit scan can carry a timestamp before the entry;
	// clamp rather than store a negative stay.
	if rec.Duration = at.Sub(rec.EnteredAt); rec.Duration < 0 {
		rec.Duration = 0
	}

	if err := t.closeActive(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// OnEntryDenied soft-invalidates the open presence record created by a
// now-denied entry: the record is closed with the reserved denied-entry
// marker and zero duration, preserving the audit trail. A missing
// record is a no-op.
func (t *Tracker) OnEntryDenied(ctx context.Context, nationalID, guardID string, at time.Time) (*model.PresenceRecord, error) {
	l := t.locks.get(nationalID)
	l.Lock()
	defer l.Unlock()

	rec, err := t.findActive(ctx, nationalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	exitedAt := at
	rec.ExitedAt = &exitedAt
	rec.ExitCheckpoint = model.DeniedEntryCheckpoint
	rec.ExitGuardID = guardID
	rec.Inside = false
	rec.Duration = 0

	if err := t.closeActive(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// OnEntryReauthorized re-creates the presence record for an entry whose
// denial was reversed. The record is a reconstruction: it carries the
// original scan's timestamp and checkpoint, not the reversal time. An
// already-open record is a no-op.
func (t *Tracker) OnEntryReauthorized(ctx context.Context, entry *model.AttendanceRecord) (*model.PresenceRecord, error) {
	l := t.locks.get(entry.NationalID)
	l.Lock()
	defer l.Unlock()

	existing, err := t.findActive(ctx, entry.NationalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rec := &model.PresenceRecord{
		ID:              uuid.NewString(),
		NationalID:      entry.NationalID,
		PersonName:      entry.FirstName + " " + entry.LastName,
		Faculty:         entry.FacultyCode,
		School:          entry.SchoolCode,
		EnteredAt:       entry.Timestamp,
		EntryCheckpoint: entry.Checkpoint,
		EntryGuardID:    entry.GuardID,
		Inside:          true,
	}

	var person model.Person
	err = t.db.WithContext(ctx).First(&person, "national_id = ?", entry.NationalID).Error
	if err == nil {
		rec.PersonID = person.ID
		rec.PersonName = person.FullName()
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := t.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to restore presence record: %w", err)
	}
	return rec, nil
}

// CurrentlyInside lists all open presence records.
func (t *Tracker) CurrentlyInside(ctx context.Context) ([]model.PresenceRecord, error) {
	var recs []model.PresenceRecord
	err := t.db.WithContext(ctx).
		Where("inside = ?", true).
		Order("entered_at DESC").
		Find(&recs).Error
	return recs, err
}

// History lists all presence records, newest entry first.
func (t *Tracker) History(ctx context.Context) ([]model.PresenceRecord, error) {
	var recs []model.PresenceRecord
	err := t.db.WithContext(ctx).Order("entered_at DESC").Find(&recs).Error
	return recs, err
}

// LongStay lists open presence records whose entry is older than the
// given threshold.
func (t *Tracker) LongStay(ctx context.Context, threshold time.Duration, now time.Time) ([]model.PresenceRecord, error) {
	cutoff := now.Add(-threshold)
	var recs []model.PresenceRecord
	err := t.db.WithContext(ctx).
		Where("inside = ? AND entered_at <= ?", true, cutoff).
		Order("entered_at ASC").
		Find(&recs).Error
	return recs, err
}

// MarkLongStayAlerted records that a long-stay alert went out for the
// given presence record, so the checker does not alert twice.
func (t *Tracker) MarkLongStayAlerted(ctx context.Context, id string, at time.Time) error {
	return t.db.WithContext(ctx).Model(&model.PresenceRecord{}).
		Where("id = ?", id).
		Update("long_stay_alerted_at", at).Error
}

func (t *Tracker) findActive(ctx context.Context, nationalID string) (*model.PresenceRecord, error) {
	var rec model.PresenceRecord
	err := t.db.WithContext(ctx).
		Where("national_id = ? AND inside = ?", nationalID, true).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// closeActive flips the record to closed with an atomic conditional
// update: the WHERE inside clause means a concurrent closer wins at
// most once.
func (t *Tracker) closeActive(ctx context.Context, rec *model.PresenceRecord) error {
	res := t.db.WithContext(ctx).Model(&model.PresenceRecord{}).
		Where("id = ? AND inside = ?", rec.ID, true).
		Updates(map[string]any{
			"exited_at":       rec.ExitedAt,
			"exit_checkpoint": rec.ExitCheckpoint,
			"exit_guard_id":   rec.ExitGuardID,
			"inside":          false,
			"duration":        rec.Duration,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close presence record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotInside
	}
	return nil
}
