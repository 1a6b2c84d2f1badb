package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/pkg/database"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	store
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{store: newStore(db, logger)}
}

const userColumns = `id, email, full_name, password_hash, role, is_admin, is_active,
	approval_limit, last_login_at, created_at, updated_at`

// Create inserts a user; emails are stored lower-cased and must be unique
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var limit decimal.NullDecimal
	if user.ApprovalLimit != nil {
		limit = decimal.NewNullDecimal(*user.ApprovalLimit)
	}

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		string(user.Role),
		user.IsAdmin,
		user.IsActive,
		limit,
		nullTime(user.LastLoginAt),
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: email %s is already registered", entity.ErrValidation, user.Email)
		}
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// UpdateLastLogin records a successful login
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx).ExecContext(ctx,
		r.q("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?"),
		at.UTC(), at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update last login", zap.String("user_id", id), zap.Error(err))
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: user %s", entity.ErrNotFound, id)
	}
	return nil
}

// Update writes the mutable account fields; email and password are left alone
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	var limit decimal.NullDecimal
	if user.ApprovalLimit != nil {
		limit = decimal.NewNullDecimal(*user.ApprovalLimit)
	}

	res, err := r.exec(ctx).ExecContext(ctx, r.q(`
		UPDATE users
		SET full_name = ?, role = ?, is_admin = ?, is_active = ?, approval_limit = ?, updated_at = ?
		WHERE id = ?
	`),
		user.FullName,
		string(user.Role),
		user.IsAdmin,
		user.IsActive,
		limit,
		user.UpdatedAt.UTC(),
		user.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update user", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: user %s", entity.ErrNotFound, user.ID)
	}
	return nil
}

// List returns users ordered by email
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY email LIMIT ? OFFSET ?`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), clampLimit(limit), max(offset, 0))
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*entity.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(r.exec(ctx).QueryRowContext(ctx, r.q(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %v", entity.ErrNotFound, arg)
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		user      entity.User
		role      string
		limit     decimal.NullDecimal
		lastLogin sql.NullTime
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&role,
		&user.IsAdmin,
		&user.IsActive,
		&limit,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Role = entity.Role(role)
	if limit.Valid {
		l := limit.Decimal
		user.ApprovalLimit = &l
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
