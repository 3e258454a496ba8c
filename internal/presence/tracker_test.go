package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-access-backend/internal/db"
	"campus-access-backend/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))

	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})
	return testDB
}

func testPerson() *model.Person {
	return &model.Person{
		ID:             "person-1",
		NationalID:     "70123456",
		UniversityCode: "2021100123",
		FirstName:      "Maria",
		LastName:       "Quispe",
		FacultyCode:    "FIIS",
		SchoolCode:     "EPIS",
		Active:         true,
	}
}

func TestTracker_EntryExitRoundTrip(t *testing.T) {
	tracker := NewTracker(openTestDB(t))
	ctx := context.Background()
	person := testPerson()

	entryAt := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	rec, err := tracker.OnEntryAuthorized(ctx, person, "Principal", "guard-01", entryAt)
	require.NoError(t, err)
	assert.True(t, rec.Inside)
	assert.Equal(t, "Maria Quispe", rec.PersonName)

	exitAt := entryAt.Add(3 * time.Hour)
	closed, err := tracker.OnExitAuthorized(ctx, person.NationalID, "Lateral", "guard-02", exitAt)
	require.NoError(t, err)
	assert.False(t, closed.Inside)
	assert.Equal(t, 3*time.Hour, closed.Duration)
	assert.Equal(t, "Lateral", closed.ExitCheckpoint)
	assert.Equal(t, "guard-02", closed.ExitGuardID)

	inside, err := tracker.CurrentlyInside(ctx)
	require.NoError(t, err)
	assert.Empty(t, inside)
}

func TestTracker_DuplicateEntryRejected(t *testing.T) {
	tracker := NewTracker(openTestDB(t))
	ctx := context.Background()
	person := testPerson()

	at := time.Now().UTC()
	_, err := tracker.OnEntryAuthorized(ctx, person, "Principal", "guard-01", at)
	require.NoError(t, err)

	// Replaying the same entry must not create a second open record.
	_, err = tracker.OnEntryAuthorized(ctx, person, "Principal", "guard-01", at)
	assert.ErrorIs(t, err, ErrAlreadyInside)

	inside, err := tracker.CurrentlyInside(ctx)
	require.NoError(t, err)
	assert.Len(t, inside, 1)
}

func TestTracker_BackdatedExitClampsDuration(t *testing.T) {
	tracker := NewTracker(openTestDB(t))
	ctx := context.Background()
	person := testPerson()

	entryAt := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	_, err := tracker.OnEntryAuthorized(ctx, person, "Principal", "guard-01", entryAt)
	require.NoError(t, err)

	// An exit scan carrying a timestamp before the entry still closes
	// the record, with a zero stay instead of a negative one.
	closed, err := tracker.OnExitAuthorized(ctx, person.NationalID, "Principal", "guard-01", entryAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, closed.Inside)
	assert.Zero(t, closed.Duration)
}

func TestTracker_ExitWithoutPresence(t *testing.T) {
	tracker := NewTracker(openTestDB(t))

	_, err := tracker.OnExitAuthorized(context.Background(), "70123456", "Principal", "guard-01", time.Now())
	assert.ErrorIs(t, err, ErrNotInside)
}

func TestTracker_DeniedEntrySoftInvalidation(t *testing.T) {
	tracker := NewTracker(openTestDB(t))
	ctx := context.Background()
	person := testPerson()

	entryAt := time.Now().UTC().Add(-4 * time.Minute)
	_, err := tracker.OnEntryAuthorized(ctx, person, "Principal", "guard-01", entryAt)
	require.NoError(t, err)

	deniedAt := time.Now().UTC()
	rec, err := tracker.OnEntryDenied(ctx, person.NationalID, "guard-03", deniedAt)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.False(t, rec.Inside)
	assert.True(t, rec.Invalidated())
	assert.Equal(t, model.DeniedEntryCheckpoint, rec.ExitCheckpoint)
	assert.Equal(t, "guard-03", rec.ExitGuardID)
	assert.Zero(t, rec.Duration)

	// Denying again is a no-op: nothing left to invalidate.
	again, err := tracker.OnEntryDenied(ctx, person.NationalID, "guard-03", deniedAt)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestTracker_ReauthorizationRestoresOriginalEntry(t *testing.T) {
	gdb := openTestDB(t)
	tracker := NewTracker(gdb)
	ctx := context.Background()
	person := testPerson()
	require.NoError(t, gdb.Create(person).Error)

	originalTS := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	entry := &model.AttendanceRecord{
		ID:         "att-1",
		NationalID: person.NationalID,
		FirstName:  person.FirstName,
		LastName:   person.LastName,
		Type:       model.ScanEntry,
		Timestamp:  originalTS,
		Checkpoint: "Principal",
		GuardID:    "guard-01",
	}

	rec, err := tracker.OnEntryReauthorized(ctx, entry)
	require.NoError(t, err)
	assert.True(t, rec.Inside)
	assert.Equal(t, originalTS, rec.EnteredAt.UTC())
	assert.Equal(t, "Principal", rec.EntryCheckpoint)
	assert.Equal(t, person.ID, rec.PersonID)

	// Re-running the reconstruction keeps a single open record.
	again, err := tracker.OnEntryReauthorized(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	inside, err := tracker.CurrentlyInside(ctx)
	require.NoError(t, err)
	assert.Len(t, inside, 1)
}

func TestTracker_LongStay(t *testing.T) {
	tracker := NewTracker(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	early := testPerson()
	_, err := tracker.OnEntryAuthorized(ctx, early, "Principal", "guard-01", now.Add(-9*time.Hour))
	require.NoError(t, err)

	late := testPerson()
	late.ID = "person-2"
	late.NationalID = "70999999"
	_, err = tracker.OnEntryAuthorized(ctx, late, "Principal", "guard-01", now.Add(-1*time.Hour))
	require.NoError(t, err)

	long, err := tracker.LongStay(ctx, 8*time.Hour, now)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Equal(t, early.NationalID, long[0].NationalID)

	require.NoError(t, tracker.MarkLongStayAlerted(ctx, long[0].ID, now))

	var reloaded model.PresenceRecord
	require.NoError(t, tracker.db.First(&reloaded, "id = ?", long[0].ID).Error)
	assert.NotNil(t, reloaded.LongStayAlertedAt)
}
