package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/pkg/crypto"
	"github.com/charlesng35/classdesk/pkg/logger"
	"github.com/charlesng35/classdesk/pkg/metrics"
	"github.com/charlesng35/classdesk/pkg/validator"
)

const (
	defaultTransactionTimeout = 5 * time.Second
	generatedCodeBytes        = 4
	maxGenerateAttempts       = 5
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTransactionTimeout bounds how long a redemption may hold its lock.
func WithTransactionTimeout(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithCodeGenerator overrides the random code source.
func WithCodeGenerator(generate func() (string, error)) InvitationOption {
	return func(s *InvitationService) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// WithInvitationAudit records issue and redeem events.
func WithInvitationAudit(audit *AuditService) InvitationOption {
	return func(s *InvitationService) {
		s.audit = audit
	}
}

// IssueInput describes a new invitation code. An empty Code asks the service
// to generate one; MaxUses of nil or 0 means unlimited. Active defaults to
// true when nil.
type IssueInput struct {
	Code      string
	MaxUses   *int
	ExpiresAt *time.Time
	Active    *bool
}

// CodePreview is the read-only state of a code shown before redemption.
type CodePreview struct {
	Code          string                `json:"code"`
	Usable        bool                  `json:"usable"`
	Reason        models.UnusableReason `json:"reason,omitempty"`
	RemainingUses *int                  `json:"remaining_uses"`
	ExpiresAt     *time.Time            `json:"expires_at"`
}

// InvitationService issues invitation codes and redeems them for students.
// Redemption of one code is serialised by an in-process lock keyed by the
// code plus a row lock on the code record.
type InvitationService struct {
	db        *gorm.DB
	audit     *AuditService
	locks     *keyedLock
	txTimeout time.Duration
	generate  func() (string, error)
	now       func() time.Time
	log       *zap.Logger
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:        db,
		locks:     newKeyedLock(),
		txTimeout: defaultTransactionTimeout,
		generate:  func() (string, error) { return crypto.GenerateCode(generatedCodeBytes) },
		now:       time.Now,
		log:       logger.WithModule("invitations"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Redeem consumes one use of rawCode for the principal and activates them.
// Checks run in order: code present, code exists, student role, code
// usable, not yet redeemed by this user. No state changes on failure.
func (s *InvitationService) Redeem(ctx context.Context, rawCode string, principal Principal) (*models.InvitationRedemption, error) {
	ctx = ensureContext(ctx)

	code := normaliseCode(rawCode)
	if code == "" {
		s.observeRedeem("invalid")
		return nil, fmt.Errorf("%w: invitation code is required", ErrInvalidInput)
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, s.txTimeout)
	defer cancelLock()

	waitStart := time.Now()
	unlock, err := s.locks.Lock(lockCtx, code)
	metrics.RedeemLockWait.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		s.observeRedeem("error")
		s.log.Warn("invitation lock wait abandoned", zap.String("code", code), zap.Error(err))
		return nil, unavailable("invitation service: wait for code lock", err)
	}
	defer unlock()

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		redemption models.InvitationRedemption
		invitation models.InvitationCode
	)
	err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := setLockTimeout(tx, s.txTimeout); err != nil {
			return unavailable("invitation service: set lock timeout", err)
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			Take(&invitation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invitation code %s: %w", code, ErrNotFound)
			}
			return unavailable("invitation service: load code", err)
		}

		if principal.Role != models.RoleStudent {
			return fmt.Errorf("%w: only students can redeem invitation codes", ErrRoleMismatch)
		}

		now := s.now()
		if reason := invitation.Usability(now); reason != models.UnusableNone {
			return &CodeUnusableError{Code: code, Reason: reason}
		}

		var prior int64
		if err := tx.Model(&models.InvitationRedemption{}).
			Where("invitation_code_id = ? AND user_id = ?", invitation.ID, principal.ID).
			Count(&prior).Error; err != nil {
			return unavailable("invitation service: check prior redemption", err)
		}
		if prior > 0 {
			return ErrAlreadyRedeemed
		}

		redemption = models.InvitationRedemption{
			InvitationCodeID: invitation.ID,
			UserID:           principal.ID,
			RedeemedAt:       now,
		}
		if err := tx.Create(&redemption).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyRedeemed
			}
			return unavailable("invitation service: record redemption", err)
		}

		invitation.RecordUse()
		if err := tx.Model(&models.InvitationCode{}).
			Where("id = ?", invitation.ID).
			Updates(map[string]any{
				"use_count":  invitation.UseCount,
				"is_active":  invitation.IsActive,
				"updated_at": now,
			}).Error; err != nil {
			return unavailable("invitation service: update code", err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ? AND is_verified = ?", principal.ID, false).
			Update("is_verified", true).Error; err != nil {
			return unavailable("invitation service: activate user", err)
		}

		return nil
	})
	if err != nil {
		err = classify("invitation service: redeem", err)
		s.observeRedeem(redeemResult(err))
		s.log.Info("invitation redemption refused",
			zap.String("code", code),
			zap.String("user_id", principal.ID),
			zap.Error(err),
		)
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   principal.ID,
			Action:   "invitation.redeem",
			Resource: code,
			Result:   "failure",
			Metadata: map[string]any{"reason": redeemResult(err)},
		})
		return nil, err
	}

	s.observeRedeem("success")
	s.log.Info("invitation redeemed",
		zap.String("code", code),
		zap.String("user_id", principal.ID),
		zap.Int("use_count", invitation.UseCount),
		zap.Bool("code_active", invitation.IsActive),
	)
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   principal.ID,
		Action:   "invitation.redeem",
		Resource: code,
		Result:   "success",
		Metadata: map[string]any{"use_count": invitation.UseCount},
	})

	return &redemption, nil
}

// Issue creates a new invitation code owned by creator.
func (s *InvitationService) Issue(ctx context.Context, creator Principal, input IssueInput) (*models.InvitationCode, error) {
	ctx = ensureContext(ctx)

	if !creator.IsTeacher() {
		return nil, fmt.Errorf("%w: only teachers can issue invitation codes", ErrRoleMismatch)
	}

	var maxUses *int
	if input.MaxUses != nil {
		switch {
		case *input.MaxUses < 0:
			return nil, fmt.Errorf("%w: max uses must not be negative", ErrInvalidInput)
		case *input.MaxUses > 0:
			value := *input.MaxUses
			maxUses = &value
		}
	}

	now := s.now()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	generated := strings.TrimSpace(input.Code) == ""
	attempts := 1
	if generated {
		attempts = maxGenerateAttempts
	}

	for attempt := 0; attempt < attempts; attempt++ {
		code, err := s.nextCode(input.Code)
		if err != nil {
			return nil, err
		}

		invitation := &models.InvitationCode{
			Code:        code,
			CreatedByID: creator.ID,
			IsActive:    active,
			MaxUses:     maxUses,
			ExpiresAt:   input.ExpiresAt,
		}

		err = s.db.WithContext(ctx).Create(invitation).Error
		if err == nil {
			metrics.InvitationsIssued.WithLabelValues(strconv.FormatBool(generated)).Inc()
			s.log.Info("invitation code issued",
				zap.String("code", code),
				zap.String("created_by", creator.ID),
				zap.Bool("generated", generated),
			)
			recordAudit(s.audit, ctx, AuditEntry{
				UserID:   creator.ID,
				Action:   "invitation.issue",
				Resource: code,
				Result:   "success",
				Metadata: map[string]any{"generated": generated},
			})
			return invitation, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, unavailable("invitation service: create code", err)
		}
		if !generated {
			return nil, fmt.Errorf("invitation code %s: %w", code, ErrDuplicateCode)
		}
		s.log.Debug("generated invitation code collided", zap.String("code", code))
	}

	return nil, unavailable("invitation service: generate code", fmt.Errorf("no unique code after %d attempts", attempts))
}

func (s *InvitationService) nextCode(supplied string) (string, error) {
	if strings.TrimSpace(supplied) == "" {
		code, err := s.generate()
		if err != nil {
			return "", unavailable("invitation service: generate code", err)
		}
		return normaliseCode(code), nil
	}

	code := normaliseCode(supplied)
	if !validator.IsInvitationCode(code) {
		return "", fmt.Errorf("%w: code must be 1-16 characters of A-Z, 0-9 or '-'", ErrInvalidInput)
	}
	return code, nil
}

// ListByCreator returns the codes issued by creator, newest first.
func (s *InvitationService) ListByCreator(ctx context.Context, creator Principal) ([]models.InvitationCode, error) {
	ctx = ensureContext(ctx)

	if !creator.IsTeacher() {
		return nil, fmt.Errorf("%w: only teachers own invitation codes", ErrRoleMismatch)
	}

	var codes []models.InvitationCode
	if err := s.db.WithContext(ctx).
		Where("created_by_id = ?", creator.ID).
		Order("created_at DESC").
		Find(&codes).Error; err != nil {
		return nil, unavailable("invitation service: list codes", err)
	}
	return codes, nil
}

// Deactivate turns off a code owned by principal. The code row is kept so
// existing redemptions stay attributable.
func (s *InvitationService) Deactivate(ctx context.Context, codeID string, principal Principal) (*models.InvitationCode, error) {
	ctx = ensureContext(ctx)

	codeID = strings.TrimSpace(codeID)
	if codeID == "" {
		return nil, fmt.Errorf("%w: code id is required", ErrInvalidInput)
	}

	var invitation models.InvitationCode
	if err := s.db.WithContext(ctx).Take(&invitation, "id = ?", codeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invitation code %s: %w", codeID, ErrNotFound)
		}
		return nil, unavailable("invitation service: load code", err)
	}

	lockCtx, cancelLock := context.WithTimeout(ctx, s.txTimeout)
	defer cancelLock()

	unlock, err := s.locks.Lock(lockCtx, invitation.Code)
	if err != nil {
		return nil, unavailable("invitation service: wait for code lock", err)
	}
	defer unlock()

	if !principal.IsTeacher() || invitation.CreatedByID != principal.ID {
		return nil, fmt.Errorf("%w: only the issuing teacher can deactivate a code", ErrRoleMismatch)
	}

	if invitation.IsActive {
		if err := s.db.WithContext(ctx).
			Model(&models.InvitationCode{}).
			Where("id = ?", invitation.ID).
			Update("is_active", false).Error; err != nil {
			return nil, unavailable("invitation service: deactivate code", err)
		}
		invitation.IsActive = false
		recordAudit(s.audit, ctx, AuditEntry{
			UserID:   principal.ID,
			Action:   "invitation.deactivate",
			Resource: invitation.Code,
			Result:   "success",
		})
	}

	return &invitation, nil
}

// Lookup reports whether rawCode could be redeemed right now without
// changing anything.
func (s *InvitationService) Lookup(ctx context.Context, rawCode string) (*CodePreview, error) {
	ctx = ensureContext(ctx)

	code := normaliseCode(rawCode)
	if code == "" {
		return nil, fmt.Errorf("%w: invitation code is required", ErrInvalidInput)
	}

	var invitation models.InvitationCode
	if err := s.db.WithContext(ctx).Take(&invitation, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invitation code %s: %w", code, ErrNotFound)
		}
		return nil, unavailable("invitation service: lookup code", err)
	}

	reason := invitation.Usability(s.now())
	return &CodePreview{
		Code:          invitation.Code,
		Usable:        reason == models.UnusableNone,
		Reason:        reason,
		RemainingUses: invitation.RemainingUses(),
		ExpiresAt:     invitation.ExpiresAt,
	}, nil
}

func (s *InvitationService) observeRedeem(result string) {
	metrics.Redemptions.WithLabelValues(result).Inc()
}

func redeemResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRoleMismatch):
		return "role_mismatch"
	case errors.Is(err, ErrCodeExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "already_redeemed"
	default:
		return "error"
	}
}
