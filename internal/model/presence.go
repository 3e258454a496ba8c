package model

import "time"

// DeniedEntryCheckpoint is the reserved exit marker written when a
// presence record is soft-invalidated because its entry was denied.
// It is not a real checkpoint.
const DeniedEntryCheckpoint = "DENIED_ENTRY"

// PresenceRecord is the derived "currently inside" view for one person.
// At most one record per person has Inside=true at any time; closing a
// record (real exit or denied-entry invalidation) is the only removal
// mechanism, so history is preserved.
type PresenceRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	PersonID   string `gorm:"size:64"`
	NationalID string `gorm:"index:idx_presence_nid_inside;size:16;not null"`
	PersonName string `gorm:"size:256;not null"`
	Faculty    string `gorm:"size:16"`
	School     string `gorm:"size:16"`

	EnteredAt       time.Time `gorm:"index;not null"`
	EntryCheckpoint string    `gorm:"size:64;not null"`
	EntryGuardID    string    `gorm:"size:64;not null"`

	ExitedAt       *time.Time
	ExitCheckpoint string `gorm:"size:64"`
	ExitGuardID    string `gorm:"size:64"`

	Inside   bool          `gorm:"index:idx_presence_nid_inside;not null"`
	Duration time.Duration `gorm:"not null"` // set at exit; forced to 0 on invalidation

	// LongStayAlertedAt marks that a long-stay push alert was already
	// sent for this record.
	LongStayAlertedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invalidated reports whether the record was closed by a denied entry
// rather than a real exit.
func (p PresenceRecord) Invalidated() bool {
	return !p.Inside && p.ExitCheckpoint == DeniedEntryCheckpoint
}
