package handlers

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/classdesk/internal/services"
	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/response"
)

// uploadFormField is the multipart field carrying submission files.
const uploadFormField = "files"

// MultipartOverhead is the allowance for part headers and boundaries on top
// of the file bytes a submission request may carry.
const MultipartOverhead int64 = 64 << 10

type SubmissionHandler struct {
	attachments *services.AttachmentService
	submissions *services.SubmissionService
}

func NewSubmissionHandler(attachments *services.AttachmentService, submissions *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		attachments: attachments,
		submissions: submissions,
	}
}

type gradeSubmissionRequest struct {
	Grade    *int   `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string `json:"feedback" validate:"max=4000"`
}

// POST /api/assignments/:id/submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	limit := h.attachments.MaxBatchBytes() + MultipartOverhead
	if c.Request.ContentLength > limit {
		respondServiceError(c, requestTooLarge(limit))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var (
		headers  []*multipart.FileHeader
		tooLarge *http.MaxBytesError
	)
	form, err := c.MultipartForm()
	switch {
	case err == nil:
		headers = form.File[uploadFormField]
	case errors.As(err, &tooLarge):
		respondServiceError(c, requestTooLarge(tooLarge.Limit))
		return
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		// Treated as an empty batch below.
	default:
		response.Error(c, appErrors.ErrInvalidInput.WithMessage("invalid multipart payload"))
		return
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		respondServiceError(c, err)
		return
	}

	submission, err := h.attachments.IngestBatch(requestContext(c), principal, c.Param("id"), uploads)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, submission)
}

// GET /api/submissions
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	submissions, err := h.submissions.ListForStudent(requestContext(c), principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, submissions, &response.Meta{Total: len(submissions)})
}

// GET /api/assignments/:id/submissions
func (h *SubmissionHandler) ListForAssignment(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	assignmentID := c.Param("id")

	submissions, err := h.submissions.ListForAssignment(ctx, principal, assignmentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	duplicates, err := h.attachments.DuplicatesForAssignment(ctx, assignmentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, gin.H{
		"submissions": submissions,
		"duplicates":  duplicates,
	}, &response.Meta{Total: len(submissions)})
}

// POST /api/submissions/:id/grade
func (h *SubmissionHandler) Grade(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req gradeSubmissionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	submission, err := h.submissions.Grade(requestContext(c), c.Param("id"), principal, *req.Grade, req.Feedback)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, submission)
}

// GET /api/attachments/:id/download
func (h *SubmissionHandler) Download(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	attachment, reader, err := h.submissions.OpenAttachment(requestContext(c), c.Param("id"), principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension("." + attachment.Extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": filepath.Base(attachment.OriginalName),
	}))
	c.Header("X-Content-SHA256", attachment.SHA256)
	c.DataFromReader(http.StatusOK, attachment.SizeBytes, contentType, reader, nil)
}

// openUploads opens every multipart part. The returned closer releases all
// opened parts, including when opening fails midway.
func openUploads(headers []*multipart.FileHeader) ([]services.Upload, func(), error) {
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		var err error
		for _, file := range files {
			err = multierr.Append(err, file.Close())
		}
		if err != nil {
			logger.WithModule("http").Warn("failed to close upload parts", zap.Error(err))
		}
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open upload %s: %w: %w", header.Filename, services.ErrUnavailable, err)
		}
		files = append(files, file)
		uploads = append(uploads, services.Upload{
			Name:   header.Filename,
			Size:   header.Size,
			Reader: file,
		})
	}
	return uploads, closeAll, nil
}

func requestTooLarge(limit int64) error {
	return fmt.Errorf("%w: request body exceeds %d bytes", services.ErrTooLarge, limit)
}
