package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
)

// SubmissionOption customises SubmissionService behaviour.
type SubmissionOption func(*SubmissionService)

// WithSubmissionClock injects a custom clock primarily for testing.
func WithSubmissionClock(clock func() time.Time) SubmissionOption {
	return func(s *SubmissionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSubmissionAudit records grading events.
func WithSubmissionAudit(audit *AuditService) SubmissionOption {
	return func(s *SubmissionService) {
		s.audit = audit
	}
}

// SubmissionService exposes the read and grading side of submissions.
type SubmissionService struct {
	db    *gorm.DB
	store BlobStore
	audit *AuditService
	now   func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(db *gorm.DB, store BlobStore, opts ...SubmissionOption) (*SubmissionService, error) {
	if db == nil {
		return nil, errors.New("submission service: db is required")
	}
	if store == nil {
		return nil, errors.New("submission service: blob store is required")
	}

	service := &SubmissionService{db: db, store: store, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ListForStudent returns the principal's own submissions, newest first.
func (s *SubmissionService) ListForStudent(ctx context.Context, principal Principal) ([]models.Submission, error) {
	ctx = ensureContext(ctx)

	var submissions []models.Submission
	if err := s.db.WithContext(ctx).
		Preload("Attachments").
		Preload("Assignment").
		Where("user_id = ?", principal.ID).
		Order("created_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, unavailable("submission service: list submissions", err)
	}
	return submissions, nil
}

// ListForAssignment returns every submission of an assignment for a teacher.
func (s *SubmissionService) ListForAssignment(ctx context.Context, principal Principal, assignmentID string) ([]models.Submission, error) {
	ctx = ensureContext(ctx)

	if !principal.IsTeacher() {
		return nil, fmt.Errorf("%w: only teachers can review submissions", ErrRoleMismatch)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Assignment{}).Where("id = ?", assignmentID).Count(&count).Error; err != nil {
		return nil, unavailable("submission service: load assignment", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrNotFound)
	}

	var submissions []models.Submission
	if err := s.db.WithContext(ctx).
		Preload("Attachments").
		Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, unavailable("submission service: list submissions", err)
	}
	return submissions, nil
}

// Grade records a 0-100 grade and feedback on a submission.
func (s *SubmissionService) Grade(ctx context.Context, submissionID string, principal Principal, grade int, feedback string) (*models.Submission, error) {
	ctx = ensureContext(ctx)

	if !principal.IsTeacher() {
		return nil, fmt.Errorf("%w: only teachers can grade submissions", ErrRoleMismatch)
	}
	if grade < 0 || grade > 100 {
		return nil, fmt.Errorf("%w: grade must be between 0 and 100", ErrInvalidInput)
	}

	var submission models.Submission
	if err := s.db.WithContext(ctx).Take(&submission, "id = ?", submissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
		}
		return nil, unavailable("submission service: load submission", err)
	}

	now := s.now()
	feedback = strings.TrimSpace(feedback)
	if err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", submission.ID).
		Updates(map[string]any{
			"grade":     grade,
			"feedback":  feedback,
			"graded_at": now,
		}).Error; err != nil {
		return nil, unavailable("submission service: grade submission", err)
	}

	submission.Grade = &grade
	submission.Feedback = feedback
	submission.GradedAt = &now

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   principal.ID,
		Action:   "submission.grade",
		Resource: submission.ID,
		Result:   "success",
		Metadata: map[string]any{"grade": grade},
	})

	return &submission, nil
}

// OpenAttachment returns the stored bytes of an attachment. Students may only
// open their own files; teachers may open any.
func (s *SubmissionService) OpenAttachment(ctx context.Context, attachmentID string, principal Principal) (*models.SubmissionAttachment, io.ReadCloser, error) {
	ctx = ensureContext(ctx)

	var attachment models.SubmissionAttachment
	if err := s.db.WithContext(ctx).Take(&attachment, "id = ?", attachmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, ErrNotFound)
		}
		return nil, nil, unavailable("submission service: load attachment", err)
	}

	if !principal.IsTeacher() {
		var owned int64
		if err := s.db.WithContext(ctx).
			Model(&models.Submission{}).
			Where("id = ? AND user_id = ?", attachment.SubmissionID, principal.ID).
			Count(&owned).Error; err != nil {
			return nil, nil, unavailable("submission service: check ownership", err)
		}
		if owned == 0 {
			return nil, nil, fmt.Errorf("attachment %s: %w", attachmentID, ErrNotFound)
		}
	}

	reader, err := s.store.Open(ctx, attachment.BlobPath)
	if err != nil {
		return nil, nil, unavailable("submission service: open blob", err)
	}
	return &attachment, reader, nil
}
