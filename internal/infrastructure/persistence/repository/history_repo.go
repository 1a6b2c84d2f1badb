package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/garyjia/procurement/pkg/database"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	store
}

// NewHistoryRepository creates a new audit trail repository
func NewHistoryRepository(db *database.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{store: newStore(db, logger)}
}

// Create appends a status transition record
func (r *HistoryRepository) Create(ctx context.Context, transition *entity.StatusTransition) error {
	query := `
		INSERT INTO order_status_history (
			order_id, actor_id, action, previous_status, new_status, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err := r.exec(ctx).QueryRowContext(ctx, r.q(query),
		transition.OrderID,
		transition.ActorID,
		transition.Action,
		transition.PreviousStatus.String(),
		transition.NewStatus.String(),
		transition.Comment,
		transition.Timestamp.UTC(),
	).Scan(&transition.ID)
	if err != nil {
		r.logger.Error("Failed to create history record",
			zap.String("order_id", transition.OrderID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	return nil
}

// ListByOrderID retrieves the audit trail of an order in insertion order
func (r *HistoryRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.StatusTransition, error) {
	query := `
		SELECT id, order_id, actor_id, action, previous_status, new_status, comment, created_at
		FROM order_status_history
		WHERE order_id = ?
		ORDER BY id
	`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), orderID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var history []*entity.StatusTransition
	for rows.Next() {
		var (
			h              entity.StatusTransition
			previous, next string
		)
		if err := rows.Scan(&h.ID, &h.OrderID, &h.ActorID, &h.Action, &previous, &next, &h.Comment, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.PreviousStatus = workflow.State(previous)
		h.NewStatus = workflow.State(next)
		history = append(history, &h)
	}

	return history, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
