package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.InvitationCode{},
		&models.InvitationRedemption{},
		&models.Assignment{},
		&models.Submission{},
		&models.SubmissionAttachment{},
		&models.AuditLog{},
	)
}
