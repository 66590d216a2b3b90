package models

import "time"

// InvitationCode is a shared code that activates student accounts. Codes are
// stored upper-cased. IsActive carries no column default so a code issued
// inactive keeps its false value on insert.
type InvitationCode struct {
	BaseModel

	Code        string     `gorm:"size:16;uniqueIndex;not null" json:"code"`
	CreatedByID string     `gorm:"type:uuid;not null;index" json:"created_by"`
	IsActive    bool       `gorm:"not null" json:"is_active"`
	MaxUses     *int       `json:"max_uses"`
	UseCount    int        `gorm:"not null;default:0" json:"use_count"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`

	CreatedBy   *User                  `gorm:"foreignKey:CreatedByID;constraint:OnDelete:CASCADE" json:"-"`
	Redemptions []InvitationRedemption `gorm:"foreignKey:InvitationCodeID;constraint:OnDelete:CASCADE" json:"-"`
}

// UnusableReason explains why a code cannot currently be redeemed.
type UnusableReason string

const (
	UnusableNone     UnusableReason = ""
	UnusableInactive UnusableReason = "inactive"
	UnusableExpired  UnusableReason = "expired"
	UnusableCapacity UnusableReason = "capacity"
)

// IsExpired reports whether the code expired at or before now.
func (c *InvitationCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// RemainingUses returns nil for unlimited codes.
func (c *InvitationCode) RemainingUses() *int {
	if c.MaxUses == nil {
		return nil
	}
	remaining := *c.MaxUses - c.UseCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// Usability returns UnusableNone when the code can be redeemed at now. A
// full code reports capacity even after it was deactivated for being full.
func (c *InvitationCode) Usability(now time.Time) UnusableReason {
	switch {
	case c.MaxUses != nil && c.UseCount >= *c.MaxUses:
		return UnusableCapacity
	case !c.IsActive:
		return UnusableInactive
	case c.IsExpired(now):
		return UnusableExpired
	default:
		return UnusableNone
	}
}

// RecordUse increments the use count and deactivates the code once it is full.
func (c *InvitationCode) RecordUse() {
	c.UseCount++
	if c.MaxUses != nil && c.UseCount >= *c.MaxUses {
		c.IsActive = false
	}
}
