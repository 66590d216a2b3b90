package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/pkg/crypto"
)

type attachmentFixture struct {
	db         *gorm.DB
	root       string
	store      *FilesystemBlobStore
	svc        *AttachmentService
	student    Principal
	assignment *models.Assignment
}

func newAttachmentFixture(t *testing.T, opts ...AttachmentOption) *attachmentFixture {
	t.Helper()

	db := openServiceTestDB(t)
	root := t.TempDir()
	store, err := NewFilesystemBlobStore(root)
	require.NoError(t, err)

	svc, err := NewAttachmentService(db, store, opts...)
	require.NoError(t, err)

	student := createTestUser(t, db, "student", models.RoleStudent, true)
	assignment := createTestAssignment(t, db, "Essay", true, nil)

	return &attachmentFixture{
		db:         db,
		root:       root,
		store:      store,
		svc:        svc,
		student:    PrincipalFromUser(student),
		assignment: assignment,
	}
}

func (f *attachmentFixture) blobCount(t *testing.T) int {
	t.Helper()
	count := 0
	require.NoError(t, f.store.Walk(context.Background(), func(BlobInfo) error {
		count++
		return nil
	}))
	return count
}

func textUpload(name, body string) Upload {
	return Upload{Name: name, Size: int64(len(body)), Reader: strings.NewReader(body)}
}

func TestAttachmentServiceIngestBatchStoresFiles(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	submission, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		textUpload("essay.PDF", "%PDF-1.4 essay"),
		textUpload("notes.txt", "some notes"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, submission.ID)
	require.Len(t, submission.Attachments, 2)

	first := submission.Attachments[0]
	require.Equal(t, "essay.PDF", first.OriginalName)
	require.Equal(t, "pdf", first.Extension)
	require.EqualValues(t, len("%PDF-1.4 essay"), first.SizeBytes)
	require.Len(t, first.SHA256, 64)
	require.True(t, strings.HasPrefix(first.BlobPath, BlobNamespace+"/"))

	stored, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(first.BlobPath)))
	require.NoError(t, err)
	sum, _, err := crypto.SHA256Hex(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Equal(t, first.SHA256, sum)

	var rows int64
	require.NoError(t, f.db.Model(&models.SubmissionAttachment{}).Where("submission_id = ?", submission.ID).Count(&rows).Error)
	require.EqualValues(t, 2, rows)
}

func TestAttachmentServiceFingerprintDeterminism(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()
	other := createTestUser(t, f.db, "other", models.RoleStudent, true)

	first, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("mine.txt", "identical content")})
	require.NoError(t, err)
	second, err := f.svc.IngestBatch(ctx, PrincipalFromUser(other), f.assignment.ID, []Upload{textUpload("copied.txt", "identical content")})
	require.NoError(t, err)

	require.Equal(t, first.Attachments[0].SHA256, second.Attachments[0].SHA256)
	require.NotEqual(t, first.Attachments[0].BlobPath, second.Attachments[0].BlobPath)

	clusters, err := f.svc.DuplicatesForAssignment(ctx, f.assignment.ID)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 2, clusters[0].Count)
	require.ElementsMatch(t, []string{first.ID, second.ID}, clusters[0].SubmissionIDs)
}

func TestAttachmentServiceSizeAndTypeBoundaries(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	exact := bytes.Repeat([]byte{'a'}, int(DefaultMaxAttachmentBytes))
	submission, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		{Name: "big.zip", Size: -1, Reader: bytes.NewReader(exact)},
	})
	require.NoError(t, err)
	require.EqualValues(t, DefaultMaxAttachmentBytes, submission.Attachments[0].SizeBytes)

	oversized := append(exact, 'b')
	_, err = f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		{Name: "streamed.zip", Size: -1, Reader: bytes.NewReader(oversized)},
	})
	require.ErrorIs(t, err, ErrBatchRejected)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		{Name: "declared.zip", Size: DefaultMaxAttachmentBytes + 1, Reader: bytes.NewReader(oversized)},
	})
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("tool.exe", "MZ")})
	require.ErrorIs(t, err, ErrUnsupportedType)

	require.Equal(t, 1, f.blobCount(t), "rejected uploads leave no blobs behind")
}

func TestAttachmentServiceBatchIsAtomic(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		textUpload("one.txt", "first"),
		textUpload("two.exe", "second"),
		textUpload("three.txt", "third"),
	})
	require.Error(t, err)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Files, 1)
	require.Equal(t, "two.exe", batchErr.Files[0].Name)
	require.ErrorIs(t, batchErr.Files[0], ErrUnsupportedType)
	require.Len(t, batchErr.Messages(), 1)
	require.Contains(t, batchErr.Messages()[0], "two.exe")

	var submissions, attachments int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&submissions).Error)
	require.NoError(t, f.db.Model(&models.SubmissionAttachment{}).Count(&attachments).Error)
	require.Zero(t, submissions)
	require.Zero(t, attachments)
	require.Zero(t, f.blobCount(t))
}

func TestAttachmentServiceBatchReportsEveryFailure(t *testing.T) {
	f := newAttachmentFixture(t, WithAttachmentLimits(8, nil))
	ctx := context.Background()

	_, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{
		textUpload("virus.exe", "x"),
		textUpload("long.txt", "more than eight bytes"),
		textUpload("ok.txt", "fine"),
	})

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Messages(), 2)
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.ErrorIs(t, err, ErrTooLarge)
	require.Zero(t, f.blobCount(t))
}

func TestAttachmentServiceBatchGating(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newAttachmentFixture(t, WithAttachmentClock(fixedClock(now)))
	ctx := context.Background()
	files := []Upload{textUpload("a.txt", "a")}

	_, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, nil)
	require.ErrorIs(t, err, ErrNoFilesProvided)

	teacher := PrincipalFromUser(createTestUser(t, f.db, "teacher", models.RoleTeacher, true))
	_, err = f.svc.IngestBatch(ctx, teacher, f.assignment.ID, files)
	require.ErrorIs(t, err, ErrRoleMismatch)

	pending := PrincipalFromUser(createTestUser(t, f.db, "pending", models.RoleStudent, false))
	_, err = f.svc.IngestBatch(ctx, pending, f.assignment.ID, files)
	require.ErrorIs(t, err, ErrNotActivated)

	_, err = f.svc.IngestBatch(ctx, f.student, "missing", files)
	require.ErrorIs(t, err, ErrNotFound)

	past := now.Add(-time.Hour)
	overdue := createTestAssignment(t, f.db, "Overdue", true, &past)
	_, err = f.svc.IngestBatch(ctx, f.student, overdue.ID, files)
	require.ErrorIs(t, err, ErrAssignmentClosed)

	inactive := createTestAssignment(t, f.db, "Inactive", false, nil)
	_, err = f.svc.IngestBatch(ctx, f.student, inactive.ID, files)
	require.ErrorIs(t, err, ErrAssignmentClosed)

	require.Zero(t, f.blobCount(t))
}

func TestAttachmentServiceIngestSingle(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	submission, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("a.txt", "a")})
	require.NoError(t, err)

	attachment, err := f.svc.Ingest(ctx, submission.ID, textUpload("b.png", "png bytes"))
	require.NoError(t, err)
	require.Equal(t, submission.ID, attachment.SubmissionID)
	require.Equal(t, "png", attachment.Extension)

	_, err = f.svc.Ingest(ctx, "missing", textUpload("c.txt", "c"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Ingest(ctx, submission.ID, textUpload("c", "no extension"))
	require.ErrorIs(t, err, ErrUnsupportedType)

	require.Equal(t, 2, f.blobCount(t))
}

func TestAttachmentServiceAttachmentsAreImmutable(t *testing.T) {
	f := newAttachmentFixture(t)

	submission, err := f.svc.IngestBatch(context.Background(), f.student, f.assignment.ID, []Upload{textUpload("a.txt", "a")})
	require.NoError(t, err)

	attachment := submission.Attachments[0]
	attachment.SHA256 = strings.Repeat("0", 64)
	require.ErrorIs(t, f.db.Save(&attachment).Error, models.ErrAttachmentImmutable)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestAttachmentServiceReadFailureIsUnavailable(t *testing.T) {
	f := newAttachmentFixture(t)

	_, err := f.svc.IngestBatch(context.Background(), f.student, f.assignment.ID, []Upload{
		textUpload("a.txt", "a"),
		{Name: "broken.txt", Size: -1, Reader: failingReader{}},
	})
	require.ErrorIs(t, err, ErrUnavailable)
	require.False(t, errors.Is(err, ErrBatchRejected))
	require.Zero(t, f.blobCount(t))
}

func TestAttachmentServiceCancelledContextLeavesNoRows(t *testing.T) {
	f := newAttachmentFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("a.txt", "a")})
	require.Error(t, err)

	var submissions int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&submissions).Error)
	require.Zero(t, submissions)
	require.Zero(t, f.blobCount(t))
}

func TestAttachmentServiceLimitsFilesPerSubmission(t *testing.T) {
	f := newAttachmentFixture(t, WithAttachmentMaxFiles(2), WithAttachmentLimits(4, nil))
	require.EqualValues(t, 8, f.svc.MaxBatchBytes())

	_, err := f.svc.IngestBatch(context.Background(), f.student, f.assignment.ID, []Upload{
		textUpload("a.txt", "a"),
		textUpload("b.txt", "b"),
		textUpload("c.txt", "c"),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, f.blobCount(t))
}
