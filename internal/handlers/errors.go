package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/classdesk/internal/services"
	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/response"
)

var serviceErrorTable = []struct {
	target error
	app    *appErrors.AppError
}{
	{services.ErrBatchRejected, appErrors.ErrBatchRejected},
	{services.ErrUnavailable, appErrors.ErrServiceUnavailable},
	{services.ErrInvalidInput, appErrors.ErrInvalidInput},
	{services.ErrNotFound, appErrors.ErrNotFound},
	{services.ErrRoleMismatch, appErrors.ErrRoleMismatch},
	{services.ErrNotActivated, appErrors.ErrNotActivated},
	{services.ErrCodeExhausted, appErrors.ErrCodeExhausted},
	{services.ErrAlreadyRedeemed, appErrors.ErrAlreadyRedeemed},
	{services.ErrDuplicateCode, appErrors.ErrDuplicateCode},
	{services.ErrUnsupportedType, appErrors.ErrUnsupportedType},
	{services.ErrTooLarge, appErrors.ErrTooLarge},
	{services.ErrNoFilesProvided, appErrors.ErrNoFilesProvided},
	{services.ErrAssignmentClosed, appErrors.ErrAssignmentClosed},
}

// translateServiceError maps a domain error onto its API error. Batch
// rejections carry every per-file message and exhausted codes carry the
// reason as a detail.
func translateServiceError(err error) *appErrors.AppError {
	var batchErr *services.BatchError
	if errors.As(err, &batchErr) {
		return appErrors.ErrBatchRejected.WithDetails(batchErr.Messages()...).WithInternal(err)
	}

	var unusable *services.CodeUnusableError
	if errors.As(err, &unusable) {
		return appErrors.ErrCodeExhausted.WithDetails(string(unusable.Reason)).WithInternal(err)
	}

	for _, entry := range serviceErrorTable {
		if errors.Is(err, entry.target) {
			return entry.app.WithInternal(err)
		}
	}
	return appErrors.ErrInternalServer.WithInternal(err)
}

// respondServiceError writes the translated error and logs server-side failures.
func respondServiceError(c *gin.Context, err error) {
	appErr := translateServiceError(err)
	if appErr.StatusCode >= 500 {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	response.Error(c, appErr)
}
