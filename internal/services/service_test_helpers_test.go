package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/database/testutil"
	"github.com/charlesng35/classdesk/internal/models"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role models.Role, verified bool) *models.User {
	t.Helper()

	user := &models.User{
		Username:   username,
		Email:      username + "@school.test",
		Role:       role,
		IsVerified: verified,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAssignment(t *testing.T, db *gorm.DB, title string, active bool, due *time.Time) *models.Assignment {
	t.Helper()

	assignment := &models.Assignment{Title: title, IsActive: active, DueAt: due}
	require.NoError(t, db.Create(assignment).Error)
	return assignment
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
