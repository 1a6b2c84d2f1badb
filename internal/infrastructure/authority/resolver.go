package authority

import (
	"context"
	"fmt"

	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// userReader is the slice of the user repository the resolver needs
type userReader interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// Resolver implements port.AuthorityResolver.
// A per-user override on the user row wins over the configured role limit.
// Any negative amount, in either place, means unlimited.
type Resolver struct {
	users  userReader
	limits map[entity.Role]decimal.Decimal
	logger *zap.Logger
}

// NewResolver creates a resolver from configured role limits
func NewResolver(users userReader, limits map[entity.Role]decimal.Decimal, logger *zap.Logger) *Resolver {
	copied := make(map[entity.Role]decimal.Decimal, len(limits))
	for role, amount := range limits {
		copied[role] = amount
	}
	return &Resolver{users: users, limits: copied, logger: logger}
}

// ApprovalLimit returns the approval limit of userID
func (r *Resolver) ApprovalLimit(ctx context.Context, userID string) (entity.ApprovalLimit, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return entity.NoApproval(), fmt.Errorf("failed to resolve approval limit: %w", err)
	}

	if !user.IsActive {
		r.logger.Debug("Inactive user has no approval authority", zap.String("user_id", userID))
		return entity.NoApproval(), nil
	}

	if user.ApprovalLimit != nil {
		return toLimit(*user.ApprovalLimit), nil
	}

	if amount, ok := r.limits[user.Role]; ok {
		return toLimit(amount), nil
	}
	return entity.NoApproval(), nil
}

func toLimit(amount decimal.Decimal) entity.ApprovalLimit {
	if amount.IsNegative() {
		return entity.UnlimitedApproval()
	}
	return entity.ApprovalLimit{Amount: amount}
}
