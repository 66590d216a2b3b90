package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/classdesk/internal/models"
	"github.com/charlesng35/classdesk/internal/services"
	appErrors "github.com/charlesng35/classdesk/pkg/errors"
	"github.com/charlesng35/classdesk/pkg/response"
)

type InvitationHandler struct {
	invitations *services.InvitationService
}

func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type issueInvitationRequest struct {
	Code      string     `json:"code" validate:"omitempty,invitecode"`
	MaxUses   *int       `json:"max_uses" validate:"omitempty,gte=0"`
	ExpiresAt *time.Time `json:"expires_at"`
	IsActive  *bool      `json:"is_active"`
}

type redeemInvitationRequest struct {
	Code string `json:"code" validate:"max=64"`
}

type invitationDTO struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	IsActive      bool       `json:"is_active"`
	MaxUses       *int       `json:"max_uses"`
	UseCount      int        `json:"use_count"`
	RemainingUses *int       `json:"remaining_uses"`
	ExpiresAt     *time.Time `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toInvitationDTO(code *models.InvitationCode) invitationDTO {
	return invitationDTO{
		ID:            code.ID,
		Code:          code.Code,
		IsActive:      code.IsActive,
		MaxUses:       code.MaxUses,
		UseCount:      code.UseCount,
		RemainingUses: code.RemainingUses(),
		ExpiresAt:     code.ExpiresAt,
		CreatedAt:     code.CreatedAt,
	}
}

// POST /api/invitations
func (h *InvitationHandler) Issue(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req issueInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	code, err := h.invitations.Issue(requestContext(c), principal, services.IssueInput{
		Code:      req.Code,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Active:    req.IsActive,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, toInvitationDTO(code))
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	codes, err := h.invitations.ListByCreator(requestContext(c), principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	items := make([]invitationDTO, 0, len(codes))
	for i := range codes {
		items = append(items, toInvitationDTO(&codes[i]))
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// POST /api/invitations/:id/deactivate
func (h *InvitationHandler) Deactivate(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	code, err := h.invitations.Deactivate(requestContext(c), c.Param("id"), principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toInvitationDTO(code))
}

// GET /api/invitations/lookup?code=
func (h *InvitationHandler) Lookup(c *gin.Context) {
	if _, ok := requirePrincipal(c); !ok {
		return
	}

	code := c.Query("code")
	if code == "" {
		response.Error(c, appErrors.ErrInvalidInput.WithMessage("code is required"))
		return
	}

	preview, err := h.invitations.Lookup(requestContext(c), code)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}

// POST /api/invitations/redeem
func (h *InvitationHandler) Redeem(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req redeemInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	redemption, err := h.invitations.Redeem(requestContext(c), req.Code, principal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"redemption": redemption,
		"activated":  true,
	})
}
