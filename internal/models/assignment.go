package models

import "time"

// Assignment is the work item students submit against. The core only reads it.
type Assignment struct {
	BaseModel

	Title    string     `gorm:"not null" json:"title"`
	DueAt    *time.Time `gorm:"index" json:"due_at"`
	IsActive bool       `gorm:"not null" json:"is_active"`
}

// AcceptsSubmissions reports whether new submissions are allowed at now.
func (a *Assignment) AcceptsSubmissions(now time.Time) bool {
	if a == nil || !a.IsActive {
		return false
	}
	return a.DueAt == nil || !a.DueAt.Before(now)
}
