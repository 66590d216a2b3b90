package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
)

var (
	// ErrInvalidInput reports malformed caller input such as an empty code.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports that the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoleMismatch reports that the caller's role may not perform the operation.
	ErrRoleMismatch = errors.New("role mismatch")
	// ErrCodeExhausted reports an invitation code that is inactive, expired or full.
	ErrCodeExhausted = errors.New("invitation code exhausted")
	// ErrAlreadyRedeemed reports a second redemption of the same code by the same user.
	ErrAlreadyRedeemed = errors.New("invitation code already redeemed")
	// ErrDuplicateCode reports an invitation code that already exists.
	ErrDuplicateCode = errors.New("invitation code already exists")
	// ErrUnsupportedType reports a file extension outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge reports a file above the configured size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrNoFilesProvided reports an empty upload batch.
	ErrNoFilesProvided = errors.New("no files provided")
	// ErrNotActivated reports a student who has not redeemed an invitation yet.
	ErrNotActivated = errors.New("account not activated")
	// ErrAssignmentClosed reports an inactive or past-due assignment.
	ErrAssignmentClosed = errors.New("assignment closed")
	// ErrBatchRejected reports an upload batch with at least one invalid file.
	ErrBatchRejected = errors.New("submission batch rejected")
	// ErrUnavailable wraps storage and database failures the caller may retry later.
	ErrUnavailable = errors.New("service unavailable")
)

var domainErrors = []error{
	ErrInvalidInput,
	ErrNotFound,
	ErrRoleMismatch,
	ErrCodeExhausted,
	ErrAlreadyRedeemed,
	ErrDuplicateCode,
	ErrUnsupportedType,
	ErrTooLarge,
	ErrNoFilesProvided,
	ErrNotActivated,
	ErrAssignmentClosed,
	ErrBatchRejected,
	ErrUnavailable,
}

// CodeUnusableError explains why an invitation code could not be redeemed.
// It matches ErrCodeExhausted with errors.Is.
type CodeUnusableError struct {
	Code   string
	Reason models.UnusableReason
}

func (e *CodeUnusableError) Error() string {
	return fmt.Sprintf("invitation code %s unusable: %s", e.Code, e.Reason)
}

// Is reports ErrCodeExhausted equivalence.
func (e *CodeUnusableError) Is(target error) bool {
	return target == ErrCodeExhausted
}

// FileError ties a validation or storage failure to one uploaded file.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// BatchError carries every per-file failure of a rejected upload batch.
type BatchError struct {
	Files []*FileError
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBatchRejected, e.combined())
}

// Is reports ErrBatchRejected equivalence.
func (e *BatchError) Is(target error) bool {
	return target == ErrBatchRejected
}

// Unwrap exposes the individual file errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return multierr.Errors(e.combined())
}

// Messages returns one human readable line per failed file.
func (e *BatchError) Messages() []string {
	out := make([]string, 0, len(e.Files))
	for _, fe := range e.Files {
		out = append(out, fe.Error())
	}
	return out
}

func (e *BatchError) combined() error {
	var err error
	for _, fe := range e.Files {
		err = multierr.Append(err, fe)
	}
	return err
}

func newBatchError(err error) *BatchError {
	batch := &BatchError{}
	for _, item := range multierr.Errors(err) {
		var fe *FileError
		if errors.As(item, &fe) {
			batch.Files = append(batch.Files, fe)
			continue
		}
		batch.Files = append(batch.Files, &FileError{Err: item})
	}
	return batch
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify keeps domain errors intact and marks anything else as unavailable.
func classify(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return unavailable(op, err)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
