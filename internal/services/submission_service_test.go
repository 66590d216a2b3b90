package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/classdesk/internal/models"
)

func TestSubmissionServiceListAndGrade(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	gradedAt := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	svc, err := NewSubmissionService(f.db, f.store, WithSubmissionClock(fixedClock(gradedAt)))
	require.NoError(t, err)

	teacher := PrincipalFromUser(createTestUser(t, f.db, "teacher", models.RoleTeacher, false))

	submission, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("a.txt", "answer")})
	require.NoError(t, err)

	own, err := svc.ListForStudent(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Len(t, own[0].Attachments, 1)
	require.NotNil(t, own[0].Assignment)
	require.Equal(t, "Essay", own[0].Assignment.Title)

	_, err = svc.ListForAssignment(ctx, f.student, f.assignment.ID)
	require.ErrorIs(t, err, ErrRoleMismatch)

	_, err = svc.ListForAssignment(ctx, teacher, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	all, err := svc.ListForAssignment(ctx, teacher, f.assignment.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = svc.Grade(ctx, submission.ID, f.student, 90, "")
	require.ErrorIs(t, err, ErrRoleMismatch)

	_, err = svc.Grade(ctx, submission.ID, teacher, 101, "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Grade(ctx, "missing", teacher, 50, "")
	require.ErrorIs(t, err, ErrNotFound)

	graded, err := svc.Grade(ctx, submission.ID, teacher, 100, "  well done ")
	require.NoError(t, err)
	require.Equal(t, 100, *graded.Grade)
	require.Equal(t, "well done", graded.Feedback)

	var stored models.Submission
	require.NoError(t, f.db.Take(&stored, "id = ?", submission.ID).Error)
	require.NotNil(t, stored.Grade)
	require.Equal(t, 100, *stored.Grade)
	require.NotNil(t, stored.GradedAt)
	require.True(t, stored.GradedAt.Equal(gradedAt))
}

func TestSubmissionServiceOpenAttachment(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	svc, err := NewSubmissionService(f.db, f.store)
	require.NoError(t, err)

	submission, err := f.svc.IngestBatch(ctx, f.student, f.assignment.ID, []Upload{textUpload("a.txt", "answer")})
	require.NoError(t, err)
	attachmentID := submission.Attachments[0].ID

	attachment, reader, err := svc.OpenAttachment(ctx, attachmentID, f.student)
	require.NoError(t, err)
	defer reader.Close()
	require.Equal(t, "a.txt", attachment.OriginalName)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "answer", string(data))

	stranger := PrincipalFromUser(createTestUser(t, f.db, "stranger", models.RoleStudent, true))
	_, _, err = svc.OpenAttachment(ctx, attachmentID, stranger)
	require.ErrorIs(t, err, ErrNotFound)

	teacher := PrincipalFromUser(createTestUser(t, f.db, "teacher", models.RoleTeacher, false))
	_, teacherReader, err := svc.OpenAttachment(ctx, attachmentID, teacher)
	require.NoError(t, err)
	require.NoError(t, teacherReader.Close())

	_, _, err = svc.OpenAttachment(ctx, "missing", teacher)
	require.ErrorIs(t, err, ErrNotFound)
}
