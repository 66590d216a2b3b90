package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/pkg/logger"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	UserID   string
	Action   string
	Resource string
	Result   string
	Metadata map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	UserID   string
	Action   string
	Result   string
	Resource string
	Since    *time.Time
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log stores an audit entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	log := models.AuditLog{
		Action:   strings.TrimSpace(entry.Action),
		Resource: strings.TrimSpace(entry.Resource),
		Result:   strings.TrimSpace(entry.Result),
	}
	if entry.Metadata != nil {
		log.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	if id := strings.TrimSpace(entry.UserID); id != "" {
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns the most recent audit logs that match filters.
func (s *AuditService) List(ctx context.Context, filters AuditFilters, limit int) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), filters)

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	return query
}

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
