package model

import "time"

// Reconciliation kinds, one per presence transition.
const (
	ReconcileEntryAuthorized = "entry_authorized"
	ReconcileExitAuthorized  = "exit_authorized"
	ReconcileEntryDenied     = "entry_denied"
	ReconcileEntryReauth     = "entry_reauthorized"
)

// ReconcileTask marks a presence reconciliation that failed after its
// attendance write had already committed. The background reconciler
// replays these until the presence view converges.
type ReconcileTask struct {
	ID           int64  `gorm:"autoIncrement;primaryKey"`
	AttendanceID string `gorm:"index;size:64;not null"`
	Kind         string `gorm:"size:32;not null"`
	Attempts     int    `gorm:"not null"`
	LastError    string `gorm:"size:512"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
