package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/garyjia/procurement/pkg/database"
	"go.uber.org/zap"
)

// ShipmentRepository implements port.ShipmentRepository
type ShipmentRepository struct {
	store
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *database.DB, logger *zap.Logger) *ShipmentRepository {
	return &ShipmentRepository{store: newStore(db, logger)}
}

const shipmentColumns = `id, shipment_number, order_id, carrier, tracking_number, status, delivered_at, created_at, updated_at`

// Create inserts a shipment
func (r *ShipmentRepository) Create(ctx context.Context, s *entity.Shipment) error {
	query := `INSERT INTO shipments (` + shipmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
		s.ID, s.Number, s.OrderID, s.Carrier, s.TrackingNumber, s.Status,
		nullTime(s.DeliveredAt), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: shipment number %s", entity.ErrNumberTaken, s.Number)
		}
		r.logger.Error("Failed to create shipment", zap.String("order_id", s.OrderID), zap.Error(err))
		return fmt.Errorf("failed to create shipment: %w", err)
	}
	return nil
}

// GetByID retrieves a shipment by ID
func (r *ShipmentRepository) GetByID(ctx context.Context, id string) (*entity.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = ?`

	s, err := scanShipment(r.exec(ctx).QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: shipment %s", entity.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get shipment", zap.String("shipment_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	return s, nil
}

// ListByOrderID retrieves the shipments of an order, oldest first
func (r *ShipmentRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE order_id = ? ORDER BY created_at, id`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), orderID)
	if err != nil {
		r.logger.Error("Failed to list shipments", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []*entity.Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shipment: %w", err)
		}
		shipments = append(shipments, s)
	}
	return shipments, rows.Err()
}

// MarkDelivered sets the shipment status to DELIVERED
func (r *ShipmentRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx).ExecContext(ctx,
		r.q("UPDATE shipments SET status = ?, delivered_at = ?, updated_at = ? WHERE id = ?"),
		entity.ShipmentStatusDelivered, at.UTC(), at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark shipment delivered", zap.String("shipment_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark shipment delivered: %w", err)
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: shipment %s", entity.ErrNotFound, id)
	}
	return nil
}

// ListFulfillableOrderIDs finds APPROVED orders with at least one shipment and none outstanding
func (r *ShipmentRepository) ListFulfillableOrderIDs(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT po.id
		FROM purchase_orders po
		WHERE po.status = ?
			AND EXISTS (SELECT 1 FROM shipments s WHERE s.order_id = po.id)
			AND NOT EXISTS (SELECT 1 FROM shipments s WHERE s.order_id = po.id AND s.status <> ?)
		ORDER BY po.updated_at, po.id
		LIMIT ?
	`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query),
		workflow.StateApproved.String(), entity.ShipmentStatusDelivered, clampLimit(limit))
	if err != nil {
		r.logger.Error("Failed to list fulfillable orders", zap.Error(err))
		return nil, fmt.Errorf("failed to list fulfillable orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanShipment(row rowScanner) (*entity.Shipment, error) {
	var (
		s           entity.Shipment
		deliveredAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Number, &s.OrderID, &s.Carrier, &s.TrackingNumber, &s.Status,
		&deliveredAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		s.DeliveredAt = &t
	}
	return &s, nil
}

// Verify interface compliance
var _ port.ShipmentRepository = (*ShipmentRepository)(nil)
