package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/event"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/google/uuid"
)

// ShipmentService records deliveries against approved orders.
// Delivering the last shipment of an order emits the signal that fulfils it.
type ShipmentService interface {
	CreateShipment(ctx context.Context, actor entity.Actor, orderID, carrier, trackingNumber string) (*entity.Shipment, error)
	MarkDelivered(ctx context.Context, actor entity.Actor, shipmentID string) (*entity.Shipment, error)
	ListShipments(ctx context.Context, orderID string) ([]*entity.Shipment, error)
}

type shipmentServiceImpl struct {
	shipments  port.ShipmentRepository
	orders     port.OrderRepository
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewShipmentService creates a new ShipmentService
func NewShipmentService(
	shipments port.ShipmentRepository,
	orders port.OrderRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) ShipmentService {
	return &shipmentServiceImpl{
		shipments:  shipments,
		orders:     orders,
		txManager:  txManager,
		dispatcher: events,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateShipment opens an in-transit shipment for an APPROVED order.
// The shipment is inserted together with a version bump of the order, so a
// concurrent fulfilment of the same order conflicts instead of missing it.
func (s *shipmentServiceImpl) CreateShipment(ctx context.Context, actor entity.Actor, orderID, carrier, trackingNumber string) (*entity.Shipment, error) {
	if actor.Role == entity.RoleViewer && !actor.IsAdmin {
		return nil, fmt.Errorf("%w: viewers may not record shipments", entity.ErrAuthority)
	}

	now := s.now().UTC()
	shipment := &entity.Shipment{
		ID:             uuid.NewString(),
		Number:         generateNumber("SHP", now),
		OrderID:        orderID,
		Carrier:        strings.TrimSpace(carrier),
		TrackingNumber: strings.TrimSpace(trackingNumber),
		Status:         entity.ShipmentStatusInTransit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var err error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err = s.attach(ctx, shipment)
		retryable := errors.Is(err, entity.ErrNumberTaken) || errors.Is(err, entity.ErrConcurrencyConflict)
		if !retryable || attempt == defaultMaxAttempts {
			break
		}
		if errors.Is(err, entity.ErrNumberTaken) {
			shipment.Number = generateNumber("SHP", now)
		}
		s.logger.Info("Retrying shipment creation", "order_id", orderID, "attempt", attempt, "reason", err.Error())
	}
	if err != nil {
		if !isCallerError(err) {
			s.logger.Error("Failed to create shipment", "error", err, "order_id", orderID)
		}
		return nil, err
	}

	s.logger.Info("Shipment created", "shipment_id", shipment.ID, "order_id", orderID, "carrier", shipment.Carrier)
	return shipment, nil
}

// attach checks the order is APPROVED and stores shipment under the order's version guard
func (s *shipmentServiceImpl) attach(ctx context.Context, shipment *entity.Shipment) error {
	order, err := s.orders.GetByID(ctx, shipment.OrderID)
	if err != nil {
		return err
	}
	if order.Status != workflow.StateApproved {
		return fmt.Errorf("%w: shipments can only be added to APPROVED orders, order %s is %s", entity.ErrInvalidState, order.ID, order.Status)
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		order.UpdatedAt = shipment.CreatedAt
		if err := s.orders.Save(txCtx, order, order.Version); err != nil {
			return err
		}
		return s.shipments.Create(txCtx, shipment)
	})
}

// MarkDelivered marks a shipment delivered and emits shipment.delivered.
// Delivering an already delivered shipment is a no-op.
func (s *shipmentServiceImpl) MarkDelivered(ctx context.Context, actor entity.Actor, shipmentID string) (*entity.Shipment, error) {
	shipment, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.IsDelivered() {
		return shipment, nil
	}

	now := s.now().UTC()
	if err := s.shipments.MarkDelivered(ctx, shipmentID, now); err != nil {
		s.logger.Error("Failed to mark shipment delivered", "error", err, "shipment_id", shipmentID)
		return nil, err
	}
	shipment.Status = entity.ShipmentStatusDelivered
	shipment.DeliveredAt = &now
	shipment.UpdatedAt = now

	s.logger.Info("Shipment delivered", "shipment_id", shipmentID, "order_id", shipment.OrderID, "actor", actor.UserID)
	s.dispatcher.PublishAsync(ctx, event.NewEvent(event.TypeShipmentDelivered, shipment.OrderID, actor.UserID, map[string]interface{}{
		event.KeyShipmentID: shipment.ID,
	}))
	return shipment, nil
}

func (s *shipmentServiceImpl) ListShipments(ctx context.Context, orderID string) ([]*entity.Shipment, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.shipments.ListByOrderID(ctx, orderID)
}
