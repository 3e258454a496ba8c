package model

import "time"

// Scan types.
const (
	ScanEntry = "entry"
	ScanExit  = "exit"
)

// Authorization states of an attendance record.
const (
	StateAuthorized = "authorized"
	StateDenied     = "denied"
)

// Entry methods.
const (
	MethodNFC    = "nfc"
	MethodManual = "manual"
)

// DefaultCheckpoint is used when a scan does not name its checkpoint.
const DefaultCheckpoint = "Principal"

// AttendanceRecord is the durable record of one physical scan at a
// checkpoint. Records are created once and never deleted; the only
// mutation path is the decision amendment, which touches State,
// DecisionReason and DecisionAt.
type AttendanceRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	NationalID     string    `gorm:"index;size:16;not null"`
	FirstName      string    `gorm:"size:128;not null"`
	LastName       string    `gorm:"size:128;not null"`
	UniversityCode string    `gorm:"index;size:32;not null"`
	FacultyCode    string    `gorm:"size:16;not null"`
	SchoolCode     string    `gorm:"size:16;not null"`
	Type           string    `gorm:"size:8;not null"`
	Timestamp      time.Time `gorm:"index;not null"`
	EntryMethod    string    `gorm:"size:16;not null"`
	Checkpoint     string    `gorm:"index;size:64;not null"`

	GuardID             string `gorm:"index;size:64;not null"`
	GuardName           string `gorm:"size:256;not null"`
	ManualAuthorization bool   `gorm:"not null"`

	State          string     `gorm:"size:16;not null"`
	DecisionReason *string    `gorm:"size:512"`
	DecisionAt     *time.Time // nil until the first state change

	Coordinates  *string `gorm:"size:64"`
	LocationNote *string `gorm:"size:256"`

	CreatedAt time.Time
}

// IsEntry reports whether the scan was an entry.
func (a AttendanceRecord) IsEntry() bool { return a.Type == ScanEntry }
