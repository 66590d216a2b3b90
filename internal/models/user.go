package models

import (
	"fmt"
	"strings"
)

// Role is one of the two fixed portal roles. It is assigned at account
// creation and never changes afterwards.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// ParseRole resolves a stored or submitted role string.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	default:
		return "", fmt.Errorf("unknown role %q", value)
	}
}

// User is a portal account. IsVerified marks an activated student: it is set
// by invitation redemption and never reverted.
type User struct {
	BaseModel

	Username   string `gorm:"uniqueIndex;not null" json:"username"`
	Email      string `gorm:"index" json:"email"`
	Role       Role   `gorm:"type:varchar(16);not null;index" json:"role"`
	IsVerified bool   `gorm:"not null;default:false" json:"is_verified"`
}
