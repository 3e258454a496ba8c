package model

import "time"

// GuardSession is one guard's exclusive claim over a checkpoint. The
// partial unique index over (checkpoint) WHERE active backs the
// one-active-session-per-checkpoint invariant; see db.ApplyAccessDDL.
type GuardSession struct {
	Token      string `gorm:"primaryKey;size:64"`
	GuardID    string `gorm:"index;size:64;not null"`
	GuardName  string `gorm:"size:256;not null"`
	Checkpoint string `gorm:"index;size:64;not null"`

	DevicePlatform string `gorm:"size:64"`
	DeviceID       string `gorm:"size:128"`
	AppVersion     string `gorm:"size:32"`

	Active       bool      `gorm:"index;not null"`
	LastActivity time.Time `gorm:"not null"`
	StartedAt    time.Time `gorm:"not null"`
	EndedAt      *time.Time
	ForcedBy     string `gorm:"size:64"` // admin id when force-finalized
}
