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
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/garyjia/procurement/pkg/database"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// OrderRepository implements port.OrderRepository
type OrderRepository struct {
	store
}

// NewOrderRepository creates a new purchase order repository
func NewOrderRepository(db *database.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{store: newStore(db, logger)}
}

// Create inserts the order header and its lines in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *entity.PurchaseOrder) error {
	return r.atomic(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO purchase_orders (
				id, po_number, supplier_id, owner_id, currency, notes, expected_delivery,
				status, total_amount, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
			order.ID,
			order.Number,
			order.SupplierID,
			order.OwnerID,
			order.Currency,
			order.Notes,
			nullTime(order.ExpectedDelivery),
			order.Status.String(),
			order.Total,
			order.Version,
			order.CreatedAt.UTC(),
			order.UpdatedAt.UTC(),
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: order number %s", entity.ErrNumberTaken, order.Number)
			}
			r.logger.Error("Failed to create order", zap.String("order_id", order.ID), zap.Error(err))
			return fmt.Errorf("failed to create order: %w", err)
		}

		return r.insertLines(ctx, order)
	})
}

// GetByID loads the aggregate with lines and approvals
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	query := `
		SELECT id, po_number, supplier_id, owner_id, currency, notes, expected_delivery,
			status, total_amount, version, created_at, updated_at
		FROM purchase_orders
		WHERE id = ?
	`

	order, err := scanOrder(r.exec(ctx).QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get order by ID", zap.String("order_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if order.Lines, err = r.loadLines(ctx, id); err != nil {
		return nil, err
	}
	if order.Approvals, err = r.loadApprovals(ctx, id); err != nil {
		return nil, err
	}

	return order, nil
}

// Save writes the aggregate guarded by the optimistic version
func (r *OrderRepository) Save(ctx context.Context, order *entity.PurchaseOrder, expectedVersion int64) error {
	err := r.atomic(ctx, func(ctx context.Context) error {
		query := `
			UPDATE purchase_orders
			SET supplier_id = ?, currency = ?, notes = ?, expected_delivery = ?,
				status = ?, total_amount = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`

		res, err := r.exec(ctx).ExecContext(ctx, r.q(query),
			order.SupplierID,
			order.Currency,
			order.Notes,
			nullTime(order.ExpectedDelivery),
			order.Status.String(),
			order.Total,
			order.UpdatedAt.UTC(),
			order.ID,
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update order", zap.String("order_id", order.ID), zap.Error(err))
			return fmt.Errorf("failed to update order: %w", err)
		}

		if affected(res) == 0 {
			exists, err := r.exists(ctx, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, order.ID)
			}
			return fmt.Errorf("%w: purchase order %s is no longer at version %d", entity.ErrConcurrencyConflict, order.ID, expectedVersion)
		}

		if _, err := r.exec(ctx).ExecContext(ctx, r.q("DELETE FROM purchase_order_lines WHERE order_id = ?"), order.ID); err != nil {
			return fmt.Errorf("failed to replace lines: %w", err)
		}
		if err := r.insertLines(ctx, order); err != nil {
			return err
		}

		return r.appendApprovals(ctx, order)
	})
	if err != nil {
		return err
	}

	order.Version = expectedVersion + 1
	return nil
}

// List returns order headers matching filter, newest first
func (r *OrderRepository) List(ctx context.Context, filter port.OrderFilter) ([]*entity.PurchaseOrder, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.SupplierID != "" {
		conds = append(conds, "supplier_id = ?")
		args = append(args, filter.SupplierID)
	}
	if filter.OwnerID != "" {
		conds = append(conds, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}

	query := `
		SELECT id, po_number, supplier_id, owner_id, currency, notes, expected_delivery,
			status, total_amount, version, created_at, updated_at
		FROM purchase_orders
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*entity.PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// Delete removes the order with its lines and approvals, guarded by the optimistic version
func (r *OrderRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return r.atomic(ctx, func(ctx context.Context) error {
		for _, stmt := range []string{
			"DELETE FROM approvals WHERE order_id = ?",
			"DELETE FROM purchase_order_lines WHERE order_id = ?",
		} {
			if _, err := r.exec(ctx).ExecContext(ctx, r.q(stmt), id); err != nil {
				return fmt.Errorf("failed to delete order children: %w", err)
			}
		}

		res, err := r.exec(ctx).ExecContext(ctx, r.q("DELETE FROM purchase_orders WHERE id = ? AND version = ?"), id, expectedVersion)
		if err != nil {
			r.logger.Error("Failed to delete order", zap.String("order_id", id), zap.Error(err))
			return fmt.Errorf("failed to delete order: %w", err)
		}
		if affected(res) == 0 {
			exists, err := r.exists(ctx, id)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, id)
			}
			return fmt.Errorf("%w: purchase order %s is no longer at version %d", entity.ErrConcurrencyConflict, id, expectedVersion)
		}
		return nil
	})
}

func (r *OrderRepository) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.exec(ctx).QueryRowContext(ctx, r.q("SELECT 1 FROM purchase_orders WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) insertLines(ctx context.Context, order *entity.PurchaseOrder) error {
	query := `
		INSERT INTO purchase_order_lines (
			id, order_id, position, product_id, description, quantity, unit_price, subtotal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, line := range order.Lines {
		_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
			line.ID,
			order.ID,
			i,
			line.ProductID,
			line.Description,
			line.Quantity,
			line.UnitPrice,
			line.Subtotal,
		)
		if err != nil {
			r.logger.Error("Failed to insert order line",
				zap.String("order_id", order.ID), zap.String("line_id", line.ID), zap.Error(err))
			return fmt.Errorf("failed to insert line: %w", err)
		}
	}
	return nil
}

// appendApprovals inserts approvals not yet stored; existing rows are never touched
func (r *OrderRepository) appendApprovals(ctx context.Context, order *entity.PurchaseOrder) error {
	query := `
		INSERT INTO approvals (id, order_id, approver_id, decision, comment, decided_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	for _, a := range order.Approvals {
		_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
			a.ID,
			order.ID,
			a.ApproverID,
			a.Decision,
			a.Comment,
			a.Timestamp.UTC(),
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: approver %s already decided on order %s", entity.ErrDuplicateAction, a.ApproverID, order.ID)
			}
			return fmt.Errorf("failed to insert approval: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderID string) ([]entity.Line, error) {
	query := `
		SELECT id, product_id, description, quantity, unit_price, subtotal
		FROM purchase_order_lines
		WHERE order_id = ?
		ORDER BY position
	`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %w", err)
	}
	defer rows.Close()

	lines := []entity.Line{}
	for rows.Next() {
		var l entity.Line
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *OrderRepository) loadApprovals(ctx context.Context, orderID string) ([]entity.Approval, error) {
	query := `
		SELECT id, order_id, approver_id, decision, comment, decided_at
		FROM approvals
		WHERE order_id = ?
		ORDER BY decided_at, id
	`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	approvals := []entity.Approval{}
	for rows.Next() {
		var a entity.Approval
		if err := rows.Scan(&a.ID, &a.OrderID, &a.ApproverID, &a.Decision, &a.Comment, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*entity.PurchaseOrder, error) {
	var (
		order    entity.PurchaseOrder
		status   string
		expected sql.NullTime
	)

	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.SupplierID,
		&order.OwnerID,
		&order.Currency,
		&order.Notes,
		&expected,
		&status,
		&order.Total,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = workflow.State(status)
	if expected.Valid {
		t := expected.Time
		order.ExpectedDelivery = &t
	}
	order.Currency = strings.TrimSpace(order.Currency)
	order.Lines = []entity.Line{}
	order.Approvals = []entity.Approval{}

	return &order, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// Verify interface compliance
var _ port.OrderRepository = (*OrderRepository)(nil)
