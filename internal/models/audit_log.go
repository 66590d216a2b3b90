package models

import "gorm.io/datatypes"

// AuditLog stores one security-relevant event such as a redemption.
type AuditLog struct {
	BaseModel

	UserID   *string           `gorm:"type:uuid;index" json:"user_id"`
	Action   string            `gorm:"not null;index" json:"action"`
	Resource string            `gorm:"index" json:"resource"`
	Result   string            `gorm:"not null" json:"result"`
	Metadata datatypes.JSONMap `json:"metadata"`
}
