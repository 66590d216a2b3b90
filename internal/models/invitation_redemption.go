package models

import "time"

// InvitationRedemption records one user consuming one invitation code.
type InvitationRedemption struct {
	BaseModel

	InvitationCodeID string    `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_code_user" json:"invitation_code_id"`
	UserID           string    `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_code_user;index" json:"user_id"`
	RedeemedAt       time.Time `gorm:"not null;index" json:"redeemed_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
