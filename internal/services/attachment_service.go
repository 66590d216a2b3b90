package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/pkg/crypto"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/metrics"
)

// DefaultMaxAttachmentBytes is the per-file size ceiling (10 MiB).
const DefaultMaxAttachmentBytes int64 = 10 * 1024 * 1024

// DefaultMaxFilesPerSubmission caps how many files one submission may carry.
const DefaultMaxFilesPerSubmission = 10

// DefaultAllowedExtensions lists the accepted attachment extensions.
var DefaultAllowedExtensions = []string{"pdf", "doc", "docx", "txt", "png", "jpg", "jpeg", "zip"}

// Upload is one file handed over by the web layer. Size is the declared
// length when known and -1 otherwise.
type Upload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// AttachmentOption customises AttachmentService behaviour.
type AttachmentOption func(*AttachmentService)

// WithAttachmentLimits overrides the size ceiling and extension allow-list.
// Zero or empty values keep the defaults.
func WithAttachmentLimits(maxBytes int64, extensions []string) AttachmentOption {
	return func(s *AttachmentService) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
		if len(extensions) > 0 {
			s.allowed = extensionSet(extensions)
		}
	}
}

// WithAttachmentMaxFiles overrides how many files one submission may carry.
func WithAttachmentMaxFiles(n int) AttachmentOption {
	return func(s *AttachmentService) {
		if n > 0 {
			s.maxFiles = n
		}
	}
}

// WithAttachmentClock injects a custom clock primarily for testing.
func WithAttachmentClock(clock func() time.Time) AttachmentOption {
	return func(s *AttachmentService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithAttachmentTransactionTimeout bounds the submission insert transaction.
func WithAttachmentTransactionTimeout(d time.Duration) AttachmentOption {
	return func(s *AttachmentService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithAttachmentAudit records accepted and rejected submissions.
func WithAttachmentAudit(audit *AuditService) AttachmentOption {
	return func(s *AttachmentService) {
		s.audit = audit
	}
}

// AttachmentService validates uploads, fingerprints them while they stream
// to the blob store and persists attachment metadata.
type AttachmentService struct {
	db        *gorm.DB
	store     BlobStore
	audit     *AuditService
	maxBytes  int64
	maxFiles  int
	allowed   map[string]struct{}
	txTimeout time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(db *gorm.DB, store BlobStore, opts ...AttachmentOption) (*AttachmentService, error) {
	if db == nil {
		return nil, errors.New("attachment service: db is required")
	}
	if store == nil {
		return nil, errors.New("attachment service: blob store is required")
	}

	service := &AttachmentService{
		db:        db,
		store:     store,
		maxBytes:  DefaultMaxAttachmentBytes,
		maxFiles:  DefaultMaxFilesPerSubmission,
		allowed:   extensionSet(DefaultAllowedExtensions),
		txTimeout: defaultTransactionTimeout,
		now:       time.Now,
		log:       logger.WithModule("attachments"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// MaxBytes returns the configured per-file ceiling.
func (s *AttachmentService) MaxBytes() int64 {
	return s.maxBytes
}

// Ingest validates one upload and attaches it to an existing submission.
func (s *AttachmentService) Ingest(ctx context.Context, submissionID string, upload Upload) (*models.SubmissionAttachment, error) {
	ctx = ensureContext(ctx)

	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return nil, fmt.Errorf("%w: submission id is required", ErrInvalidInput)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", submissionID).Count(&count).Error; err != nil {
		return nil, unavailable("attachment service: load submission", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}

	attachment, err := s.stage(ctx, upload)
	if err != nil {
		metrics.AttachmentsIngested.WithLabelValues("rejected").Inc()
		return nil, err
	}
	attachment.SubmissionID = submissionID

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	if err := s.db.WithContext(txCtx).Create(attachment).Error; err != nil {
		s.discard(ctx, []models.SubmissionAttachment{*attachment})
		return nil, unavailable("attachment service: create attachment", err)
	}

	s.observeStored(*attachment)
	return attachment, nil
}

// IngestBatch creates a submission for principal with every upload attached.
// The batch is all-or-nothing: when any file fails, no rows are written,
// staged blobs are removed and a *BatchError lists every failure.
func (s *AttachmentService) IngestBatch(ctx context.Context, principal Principal, assignmentID string, uploads []Upload) (*models.Submission, error) {
	ctx = ensureContext(ctx)

	if len(uploads) == 0 {
		return nil, ErrNoFilesProvided
	}
	if len(uploads) > s.maxFiles {
		return nil, fmt.Errorf("%w: at most %d files per submission", ErrInvalidInput, s.maxFiles)
	}
	if principal.Role != models.RoleStudent {
		return nil, fmt.Errorf("%w: only students can submit work", ErrRoleMismatch)
	}
	if !principal.IsVerified {
		return nil, ErrNotActivated
	}

	assignmentID = strings.TrimSpace(assignmentID)
	var assignment models.Assignment
	if err := s.db.WithContext(ctx).Take(&assignment, "id = ?", assignmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrNotFound)
		}
		return nil, unavailable("attachment service: load assignment", err)
	}
	if !assignment.AcceptsSubmissions(s.now()) {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrAssignmentClosed)
	}

	var (
		staged   []models.SubmissionAttachment
		failures error
		infraErr error
	)
	for _, upload := range uploads {
		attachment, err := s.stage(ctx, upload)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				infraErr = multierr.Append(infraErr, err)
				continue
			}
			failures = multierr.Append(failures, &FileError{Name: displayName(upload.Name), Err: err})
			continue
		}
		staged = append(staged, *attachment)
	}

	if infraErr != nil {
		s.discard(ctx, staged)
		metrics.AttachmentsIngested.WithLabelValues("rejected").Add(float64(len(uploads)))
		return nil, infraErr
	}
	if failures != nil {
		s.discard(ctx, staged)
		metrics.AttachmentsIngested.WithLabelValues("rejected").Add(float64(len(uploads)))
		batchErr := newBatchError(failures)
		s.log.Warn("submission batch rejected",
			zap.String("assignment_id", assignmentID),
			zap.String("user_id", principal.ID),
			zap.Strings("errors", batchErr.Messages()),
		)
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   principal.ID,
			Action:   "submission.create",
			Resource: assignmentID,
			Result:   "failure",
			Metadata: map[string]any{"errors": batchErr.Messages()},
		})
		return nil, batchErr
	}

	submission := models.Submission{
		AssignmentID: assignment.ID,
		UserID:       principal.ID,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&submission).Error; err != nil {
			return err
		}
		for i := range staged {
			staged[i].SubmissionID = submission.ID
		}
		return tx.Create(&staged).Error
	})
	if err != nil {
		s.discard(ctx, staged)
		return nil, unavailable("attachment service: create submission", err)
	}

	submission.Attachments = staged
	for _, attachment := range staged {
		s.observeStored(attachment)
	}
	s.log.Info("submission stored",
		zap.String("submission_id", submission.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("user_id", principal.ID),
		zap.Int("files", len(staged)),
	)
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   principal.ID,
		Action:   "submission.create",
		Resource: assignment.ID,
		Result:   "success",
		Metadata: map[string]any{"submission_id": submission.ID, "files": len(staged)},
	})

	return &submission, nil
}

// MaxBatchBytes is the largest payload a full batch of maximum-size files
// can add up to.
func (s *AttachmentService) MaxBatchBytes() int64 {
	return int64(s.maxFiles) * s.maxBytes
}

// stage validates an upload and streams it into a new blob, computing the
// fingerprint from the same bytes. The returned attachment has no
// submission yet.
func (s *AttachmentService) stage(ctx context.Context, upload Upload) (*models.SubmissionAttachment, error) {
	name := displayName(upload.Name)
	ext := fileExtension(name)
	if _, ok := s.allowed[ext]; !ok {
		if ext == "" {
			return nil, fmt.Errorf("%w: file has no extension", ErrUnsupportedType)
		}
		return nil, fmt.Errorf("%w: .%s is not allowed", ErrUnsupportedType, ext)
	}
	if upload.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, upload.Size, s.maxBytes)
	}
	if upload.Reader == nil {
		return nil, fmt.Errorf("%w: file content is missing", ErrInvalidInput)
	}

	blob, err := s.store.Create(ctx, ext, s.now())
	if err != nil {
		return nil, unavailable("attachment service: create blob", err)
	}

	fingerprint := crypto.NewFingerprint()
	_, copyErr := io.Copy(io.MultiWriter(blob.Writer, fingerprint), io.LimitReader(upload.Reader, s.maxBytes+1))
	closeErr := blob.Writer.Close()

	var failure error
	switch {
	case copyErr != nil:
		failure = unavailable("attachment service: write blob", copyErr)
	case closeErr != nil:
		failure = unavailable("attachment service: close blob", closeErr)
	case fingerprint.Size() > s.maxBytes:
		failure = fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.maxBytes)
	case ctx.Err() != nil:
		failure = unavailable("attachment service: upload aborted", ctx.Err())
	}
	if failure != nil {
		s.deleteBlob(ctx, blob.Path)
		return nil, failure
	}

	return &models.SubmissionAttachment{
		BlobPath:     blob.Path,
		OriginalName: name,
		Extension:    ext,
		SizeBytes:    fingerprint.Size(),
		SHA256:       fingerprint.Sum(),
	}, nil
}

// DuplicatesForAssignment reports identical files across every submission of
// an assignment.
func (s *AttachmentService) DuplicatesForAssignment(ctx context.Context, assignmentID string) ([]DuplicateCluster, error) {
	ctx = ensureContext(ctx)

	var attachments []models.SubmissionAttachment
	if err := s.db.WithContext(ctx).
		Select("submission_attachments.*").
		Joins("JOIN submissions ON submissions.id = submission_attachments.submission_id").
		Where("submissions.assignment_id = ?", assignmentID).
		Find(&attachments).Error; err != nil {
		return nil, unavailable("attachment service: load attachments", err)
	}
	return FindDuplicates(attachments), nil
}

func (s *AttachmentService) discard(ctx context.Context, attachments []models.SubmissionAttachment) {
	for _, attachment := range attachments {
		s.deleteBlob(ctx, attachment.BlobPath)
	}
}

func (s *AttachmentService) deleteBlob(ctx context.Context, path string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.log.Warn("failed to delete staged blob", zap.String("path", path), zap.Error(err))
	}
}

func (s *AttachmentService) observeStored(attachment models.SubmissionAttachment) {
	metrics.AttachmentsIngested.WithLabelValues("stored").Inc()
	metrics.AttachmentBytes.Observe(float64(attachment.SizeBytes))
}

// AllowedExtensions returns the sorted allow-list.
func (s *AttachmentService) AllowedExtensions() []string {
	out := make([]string, 0, len(s.allowed))
	for ext := range s.allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func extensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return set
}

func displayName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
