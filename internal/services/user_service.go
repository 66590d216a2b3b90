package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/classdesk/internal/models"
)

// Principal is the caller identity resolved once at the request boundary and
// passed explicitly into the services.
type Principal struct {
	ID         string
	Role       models.Role
	IsVerified bool
}

// IsTeacher reports whether the principal holds the teacher role.
func (p Principal) IsTeacher() bool {
	return p.Role == models.RoleTeacher
}

// PrincipalFromUser converts a loaded user into a principal.
func PrincipalFromUser(user *models.User) Principal {
	if user == nil {
		return Principal{}
	}
	return Principal{ID: user.ID, Role: user.Role, IsVerified: user.IsVerified}
}

// CreateUserInput describes the fields accepted when provisioning an account.
type CreateUserInput struct {
	Username string
	Email    string
	Role     models.Role
}

// UserService provisions accounts and resolves request principals.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create provisions a user with a fixed role. Students start unverified.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	role, err := models.ParseRole(string(input.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user := &models.User{
		Username: username,
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Role:     role,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: username %q already taken", ErrInvalidInput, username)
		}
		return nil, unavailable("user service: create user", err)
	}
	return user, nil
}

// GetByID loads a single user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, unavailable("user service: get user", err)
	}
	return &user, nil
}

// ResolvePrincipal loads the current role and activation state of a user.
func (s *UserService) ResolvePrincipal(ctx context.Context, id string) (Principal, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	return PrincipalFromUser(user), nil
}
