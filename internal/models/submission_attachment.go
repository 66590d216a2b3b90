package models

import (
	"errors"

	"gorm.io/gorm"
)

// ErrAttachmentImmutable is returned when code tries to update a stored attachment.
var ErrAttachmentImmutable = errors.New("submission attachment is immutable")

// SubmissionAttachment is one validated file of a submission. SHA256 is
// computed once while the upload streams to BlobPath.
type SubmissionAttachment struct {
	BaseModel

	SubmissionID string `gorm:"type:uuid;not null;index" json:"submission_id"`
	BlobPath     string `gorm:"size:512;not null;uniqueIndex" json:"-"`
	OriginalName string `gorm:"size:255;not null" json:"original_name"`
	Extension    string `gorm:"size:8;not null" json:"extension"`
	SizeBytes    int64  `gorm:"not null" json:"size_bytes"`
	SHA256       string `gorm:"column:sha256;size:64;not null;index" json:"sha256"`
}

// BeforeUpdate rejects any update of a persisted attachment.
func (a *SubmissionAttachment) BeforeUpdate(tx *gorm.DB) error {
	return ErrAttachmentImmutable
}
