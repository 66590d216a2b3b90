package models

import "time"

// Submission groups the files a student uploaded together for one assignment.
type Submission struct {
	BaseModel

	AssignmentID string     `gorm:"type:uuid;not null;index" json:"assignment_id"`
	UserID       string     `gorm:"type:uuid;not null;index" json:"user_id"`
	Grade        *int       `json:"grade"`
	Feedback     string     `gorm:"type:text" json:"feedback"`
	GradedAt     *time.Time `json:"graded_at"`

	Assignment  *Assignment            `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE" json:"assignment,omitempty"`
	User        *User                  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Attachments []SubmissionAttachment `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"attachments"`
}
