package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-access-backend/internal/model"
)

// TodayStats aggregates today's scans.
type TodayStats struct {
	Date    string `json:"date"`
	Entries int64  `json:"entries"`
	Exits   int64  `json:"exits"`
	Total   int64  `json:"total"`
}

// Store is the append/amend interface over attendance records plus the
// read projections the handlers expose. Appends are visible to
// subsequent reads immediately.
type Store interface {
	DB() *gorm.DB

	Append(ctx context.Context, rec *model.AttendanceRecord) error
	Amend(ctx context.Context, id, state string, reason *string, now time.Time) (*model.AttendanceRecord, error)

	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	ListAll(ctx context.Context) ([]model.AttendanceRecord, error)
	ListByPerson(ctx context.Context, nationalID string, limit int) ([]model.AttendanceRecord, error)
	LastValidType(ctx context.Context, nationalID string) (string, error)
	ListByGuardSince(ctx context.Context, guardID string, since time.Time) ([]model.AttendanceRecord, error)
	CountToday(ctx context.Context, loc *time.Location) (TodayStats, error)

	FindPerson(ctx context.Context, nationalID string) (*model.Person, error)
	FindPersonByCode(ctx context.Context, universityCode string) (*model.Person, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// Append validates and persists a new attendance record. Missing
// required fields fail with *ValidationError; sentinel guard identities
// fail with ErrUnassignedGuard.
func (s *gormStore) Append(ctx context.Context, rec *model.AttendanceRecord) error {
	if err := validateScan(rec); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.EntryMethod == "" {
		rec.EntryMethod = model.MethodNFC
	}
	if rec.Checkpoint == "" {
		rec.Checkpoint = model.DefaultCheckpoint
	}
	if rec.State == "" {
		rec.State = model.StateAuthorized
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append attendance record: %w", err)
	}
	return nil
}

// Amend is the only mutation path for attendance records. The caller is
// responsible for checking the correction window first; Amend just
// applies state, reason and the decision timestamp.
func (s *gormStore) Amend(ctx context.Context, id, state string, reason *string, now time.Time) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		decidedAt := now
		rec.State = state
		rec.DecisionReason = reason
		rec.DecisionAt = &decidedAt

		return tx.Model(&model.AttendanceRecord{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"state":           state,
				"decision_reason": reason,
				"decision_at":     decidedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) ListAll(ctx context.Context) ([]model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	err := s.db.WithContext(ctx).Order("timestamp DESC").Find(&recs).Error
	return recs, err
}

func (s *gormStore) ListByPerson(ctx context.Context, nationalID string, limit int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("national_id = ?", nationalID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// LastValidType returns the type of the person's most recent non-denied
// record, so clients can offer the complementary scan next. With no
// valid history the cycle restarts at entry, so "exit" is reported.
func (s *gormStore) LastValidType(ctx context.Context, nationalID string) (string, error) {
	var rec model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("national_id = ? AND state <> ?", nationalID, model.StateDenied).
		Order("timestamp DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ScanExit, nil
	}
	if err != nil {
		return "", err
	}
	return rec.Type, nil
}

func (s *gormStore) ListByGuardSince(ctx context.Context, guardID string, since time.Time) ([]model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("guard_id = ? AND timestamp >= ?", guardID, since).
		Order("timestamp DESC").
		Find(&recs).Error
	return recs, err
}

func (s *gormStore) CountToday(ctx context.Context, loc *time.Location) (TodayStats, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	stats := TodayStats{Date: dayStart.Format("2006-01-02")}

	if err := s.db.WithContext(ctx).Model(&model.AttendanceRecord{}).
		Where("type = ? AND timestamp >= ? AND timestamp < ?", model.ScanEntry, dayStart, dayEnd).
		Count(&stats.Entries).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&model.AttendanceRecord{}).
		Where("type = ? AND timestamp >= ? AND timestamp < ?", model.ScanExit, dayStart, dayEnd).
		Count(&stats.Exits).Error; err != nil {
		return stats, err
	}
	stats.Total = stats.Entries + stats.Exits
	return stats, nil
}

func (s *gormStore) FindPerson(ctx context.Context, nationalID string) (*model.Person, error) {
	var p model.Person
	if err := s.db.WithContext(ctx).First(&p, "national_id = ?", nationalID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *gormStore) FindPersonByCode(ctx context.Context, universityCode string) (*model.Person, error) {
	var p model.Person
	if err := s.db.WithContext(ctx).First(&p, "university_code = ?", universityCode).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func validateScan(rec *model.AttendanceRecord) error {
	required := []struct {
		name, value string
	}{
		{"national_id", rec.NationalID},
		{"first_name", rec.FirstName},
		{"last_name", rec.LastName},
		{"university_code", rec.UniversityCode},
		{"faculty_code", rec.FacultyCode},
		{"school_code", rec.SchoolCode},
		{"type", rec.Type},
		{"guard_id", rec.GuardID},
		{"guard_name", rec.GuardName},
	}

	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}

	if rec.Type != model.ScanEntry && rec.Type != model.ScanExit {
		return &ValidationError{Missing: []string{"type"}}
	}

	for _, sid := range sentinelGuardIDs {
		if rec.GuardID == sid {
			return ErrUnassignedGuard
		}
	}
	for _, sn := range sentinelGuardNames {
		if rec.GuardName == sn {
			return ErrUnassignedGuard
		}
	}
	return nil
}
