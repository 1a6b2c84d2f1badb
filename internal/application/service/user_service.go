package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidCredentials is returned by Login and Refresh. It deliberately
// does not say whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// unlimitedAmount is the only negative approval limit accepted; it means no cap
var unlimitedAmount = decimal.NewFromInt(-1)

// RegisterInput carries the fields of a new user
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     entity.Role
}

// UpdateUserInput carries account fields to change. Nil fields are left as
// they are; ClearApprovalLimit drops the per-user override so the role limit applies.
type UpdateUserInput struct {
	FullName           *string
	Role               *entity.Role
	ApprovalLimit      *decimal.Decimal
	ClearApprovalLimit bool
}

func (in UpdateUserInput) touchesAuthority() bool {
	return in.Role != nil || in.ApprovalLimit != nil || in.ClearApprovalLimit
}

// UserService manages accounts and authentication
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*entity.User, error)
	Login(ctx context.Context, email, password string) (*entity.User, *port.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*port.TokenPair, error)
	GetUser(ctx context.Context, id string) (*entity.User, error)

	// UpdateUser lets users rename themselves; role and approval limit are admin-only
	UpdateUser(ctx context.Context, actor entity.Actor, id string, in UpdateUserInput) (*entity.User, error)
	SetUserStatus(ctx context.Context, actor entity.Actor, id string, active bool) (*entity.User, error)
	ListUsers(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.User, error)

	// EnsureAdmin makes sure an active administrator with email exists
	EnsureAdmin(ctx context.Context, email, password string) (*entity.User, error)
}

type userServiceImpl struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	tokens port.TokenIssuer
	logger Logger
	now    func() time.Time
}

// NewUserService creates a new UserService
func NewUserService(users port.UserRepository, hasher port.PasswordHasher, tokens port.TokenIssuer, logger Logger) UserService {
	return &userServiceImpl{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates an active user. Registration never grants admin rights.
func (s *userServiceImpl) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", entity.ErrValidation, in.Email)
	}
	role := in.Role
	if role == "" {
		role = entity.RoleRequester
	}
	if !role.IsValid() || role == entity.RoleAdmin {
		return nil, fmt.Errorf("%w: role %q cannot be self-assigned", entity.ErrValidation, in.Role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &entity.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("Failed to register user", "error", err, "email", email)
		return nil, err
	}

	s.logger.Info("User registered", "user_id", user.ID, "role", string(user.Role))
	return user, nil
}

// Login checks credentials and issues a token pair
func (s *userServiceImpl) Login(ctx context.Context, email, password string) (*entity.User, *port.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.logger.Info("Login rejected", "user_id", user.ID)
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("Failed to record last login", "error", err, "user_id", user.ID)
	} else {
		user.LastLoginAt = &now
	}

	s.logger.Info("User logged in", "user_id", user.ID)
	return user, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The user is reloaded so a
// deactivated account or changed role takes effect.
func (s *userServiceImpl) Refresh(ctx context.Context, refreshToken string) (*port.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, port.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.tokens.Issue(user)
}

// GetUser returns a user by ID
func (s *userServiceImpl) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateUser changes profile and authority fields of a user
func (s *userServiceImpl) UpdateUser(ctx context.Context, actor entity.Actor, id string, in UpdateUserInput) (*entity.User, error) {
	if !actor.IsAdmin && actor.UserID != id {
		return nil, fmt.Errorf("%w: only administrators may update other users", entity.ErrAuthority)
	}
	if !actor.IsAdmin && in.touchesAuthority() {
		return nil, fmt.Errorf("%w: only administrators may change roles or approval limits", entity.ErrAuthority)
	}
	if in.Role != nil && !in.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", entity.ErrValidation, *in.Role)
	}
	if in.ApprovalLimit != nil && in.ClearApprovalLimit {
		return nil, fmt.Errorf("%w: approval limit cannot be set and cleared at once", entity.ErrValidation)
	}
	if in.ApprovalLimit != nil && in.ApprovalLimit.IsNegative() && !in.ApprovalLimit.Equal(unlimitedAmount) {
		return nil, fmt.Errorf("%w: approval limit must be positive, zero or -1 for unlimited", entity.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Role != nil {
		user.Role = *in.Role
	}
	switch {
	case in.ClearApprovalLimit:
		user.ApprovalLimit = nil
	case in.ApprovalLimit != nil:
		limit := *in.ApprovalLimit
		user.ApprovalLimit = &limit
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("Failed to update user", "error", err, "user_id", id)
		return nil, err
	}

	s.logger.Info("User updated", "user_id", id, "actor", actor.UserID, "role", string(user.Role))
	return user, nil
}

// SetUserStatus activates or deactivates a user. Inactive users cannot log in
// and hold no approval authority.
func (s *userServiceImpl) SetUserStatus(ctx context.Context, actor entity.Actor, id string, active bool) (*entity.User, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: only administrators may change user status", entity.ErrAuthority)
	}
	if actor.UserID == id && !active {
		return nil, fmt.Errorf("%w: administrators cannot deactivate themselves", entity.ErrValidation)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive == active {
		return user, nil
	}

	user.IsActive = active
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Error("Failed to update user status", "error", err, "user_id", id)
		return nil, err
	}

	s.logger.Info("User status changed", "user_id", id, "actor", actor.UserID, "active", active)
	return user, nil
}

// ListUsers pages through all accounts
func (s *userServiceImpl) ListUsers(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.User, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: only administrators may list users", entity.ErrAuthority)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", entity.ErrValidation)
	}
	return s.users.List(ctx, limit, offset)
}

// EnsureAdmin creates the configured administrator on first start. An existing
// account with that email is promoted and reactivated; its password is kept.
func (s *userServiceImpl) EnsureAdmin(ctx context.Context, email, password string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid admin email %q", entity.ErrValidation, email)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == entity.RoleAdmin && existing.IsAdmin && existing.IsActive {
			return existing, nil
		}
		existing.Role = entity.RoleAdmin
		existing.IsAdmin = true
		existing.IsActive = true
		existing.UpdatedAt = s.now().UTC()
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, err
		}
		s.logger.Info("Existing user promoted to administrator", "user_id", existing.ID)
		return existing, nil
	case !errors.Is(err, entity.ErrNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	admin := &entity.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     "Administrator",
		PasswordHash: hash,
		Role:         entity.RoleAdmin,
		IsAdmin:      true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return nil, err
	}

	s.logger.Info("Administrator created", "user_id", admin.ID)
	return admin, nil
}
