package model

import "time"

// Person is a registered campus member in the directory.
type Person struct {
	ID             string `gorm:"primaryKey;size:64"`
	NationalID     string `gorm:"uniqueIndex;size:16;not null"`
	UniversityCode string `gorm:"uniqueIndex;size:32;not null"`
	FirstName      string `gorm:"size:128;not null"`
	LastName       string `gorm:"size:128;not null"`
	Faculty        string `gorm:"size:256"`
	School         string `gorm:"size:256"`
	FacultyCode    string `gorm:"size:16"`
	SchoolCode     string `gorm:"size:16"`
	Active         bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName returns the display name used on presence records.
func (p Person) FullName() string {
	return p.FirstName + " " + p.LastName
}
