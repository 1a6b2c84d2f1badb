package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	wfengine "github.com/garyjia/procurement/internal/application/workflow"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/event"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/garyjia/procurement/pkg/utils"
	"github.com/google/uuid"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SystemActorID is recorded as the actor of transitions nobody requested directly
const SystemActorID = "system"

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 20 * time.Millisecond

	// generated numbers are regenerated this many times on a collision
	maxNumberAttempts = 3
)

// CreateOrderInput carries the fields of a new purchase order
type CreateOrderInput struct {
	SupplierID       string
	Currency         string
	Notes            string
	ExpectedDelivery *time.Time
	Lines            []entity.LineInput
}

// UpdateOrderInput carries the header fields to change on a DRAFT order
type UpdateOrderInput = entity.HeaderUpdate

// PurchaseOrderService orchestrates the purchase order lifecycle.
// Status changes go through the approval engine; the service loads the
// aggregate, persists the result in one transaction and emits events.
type PurchaseOrderService interface {
	CreateOrder(ctx context.Context, actor entity.Actor, in CreateOrderInput) (*entity.PurchaseOrder, error)
	GetOrder(ctx context.Context, id string) (*entity.PurchaseOrder, error)
	ListOrders(ctx context.Context, filter port.OrderFilter) ([]*entity.PurchaseOrder, error)
	UpdateOrder(ctx context.Context, actor entity.Actor, orderID string, in UpdateOrderInput) (*entity.PurchaseOrder, error)
	AddLine(ctx context.Context, actor entity.Actor, orderID string, in entity.LineInput) (*entity.PurchaseOrder, error)
	RemoveLine(ctx context.Context, actor entity.Actor, orderID, lineID string) (*entity.PurchaseOrder, error)
	DeleteOrder(ctx context.Context, actor entity.Actor, orderID string) error

	Submit(ctx context.Context, actor entity.Actor, orderID string) (*entity.PurchaseOrder, error)
	RecordApproval(ctx context.Context, approver entity.Actor, orderID, decision, comment string) (*entity.PurchaseOrder, *entity.Approval, error)
	Cancel(ctx context.Context, actor entity.Actor, orderID string) (*entity.PurchaseOrder, error)
	MarkFulfilled(ctx context.Context, orderID string) error

	Approvals(ctx context.Context, orderID string) ([]entity.Approval, error)
	History(ctx context.Context, orderID string) ([]*entity.StatusTransition, error)
	PermittedActions(ctx context.Context, orderID string) ([]workflow.Trigger, error)
}

type purchaseOrderServiceImpl struct {
	orders     port.OrderRepository
	history    port.HistoryRepository
	suppliers  port.SupplierRepository
	shipments  port.ShipmentRepository
	engine     wfengine.ApprovalEngine
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger

	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	newNumber   func(now time.Time) string
}

// OrderServiceOption configures the purchase order service
type OrderServiceOption func(*purchaseOrderServiceImpl)

// WithMaxAttempts bounds how often a conflicting write is retried
func WithMaxAttempts(n int) OrderServiceOption {
	return func(s *purchaseOrderServiceImpl) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries
func WithRetryBackoff(d time.Duration) OrderServiceOption {
	return func(s *purchaseOrderServiceImpl) {
		s.backoff = d
	}
}

// WithServiceClock overrides time.Now
func WithServiceClock(now func() time.Time) OrderServiceOption {
	return func(s *purchaseOrderServiceImpl) {
		s.now = now
	}
}

// WithOrderNumbers overrides the PO number generator
func WithOrderNumbers(gen func(now time.Time) string) OrderServiceOption {
	return func(s *purchaseOrderServiceImpl) {
		s.newNumber = gen
	}
}

// NewPurchaseOrderService creates a new PurchaseOrderService
func NewPurchaseOrderService(
	orders port.OrderRepository,
	history port.HistoryRepository,
	suppliers port.SupplierRepository,
	shipments port.ShipmentRepository,
	engine wfengine.ApprovalEngine,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
	opts ...OrderServiceOption,
) PurchaseOrderService {
	s := &purchaseOrderServiceImpl{
		orders:      orders,
		history:     history,
		suppliers:   suppliers,
		shipments:   shipments,
		engine:      engine,
		txManager:   txManager,
		dispatcher:  events,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
		newNumber:   generateOrderNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder creates a DRAFT order with its initial lines
func (s *purchaseOrderServiceImpl) CreateOrder(ctx context.Context, actor entity.Actor, in CreateOrderInput) (*entity.PurchaseOrder, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: acting user is required", entity.ErrValidation)
	}
	if actor.Role == entity.RoleViewer && !actor.IsAdmin {
		return nil, fmt.Errorf("%w: viewers may not create orders", entity.ErrAuthority)
	}
	for i, l := range in.Lines {
		if err := entity.ValidateLine(l); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	now := s.now().UTC()
	order, err := entity.NewPurchaseOrder(s.newNumber(now), in.SupplierID, actor.UserID, in.Currency, now)
	if err != nil {
		return nil, err
	}
	order.Notes = utils.SanitizeText(in.Notes)
	order.ExpectedDelivery = in.ExpectedDelivery

	supplier, err := s.suppliers.GetByID(ctx, in.SupplierID)
	if err != nil {
		return nil, err
	}
	if !supplier.IsActive {
		return nil, fmt.Errorf("%w: supplier %s is inactive", entity.ErrValidation, supplier.Code)
	}

	for _, l := range in.Lines {
		if _, err := order.AddLine(l); err != nil {
			return nil, err
		}
	}

	created := &entity.StatusTransition{
		OrderID:   order.ID,
		ActorID:   actor.UserID,
		Action:    entity.ActionCreate,
		NewStatus: order.Status,
		Timestamp: now,
	}

	for attempt := 1; ; attempt++ {
		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.orders.Create(txCtx, order); err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			if err := s.history.Create(txCtx, created); err != nil {
				return fmt.Errorf("create history: %w", err)
			}
			return nil
		})
		if !errors.Is(err, entity.ErrNumberTaken) || attempt == maxNumberAttempts {
			break
		}
		s.logger.Info("Order number taken, regenerating", "po_number", order.Number, "attempt", attempt)
		order.Number = s.newNumber(now)
	}
	if err != nil {
		s.logger.Error("Failed to create order", "error", err, "supplier_id", in.SupplierID)
		return nil, err
	}

	s.logger.Info("Order created", "order_id", order.ID, "po_number", order.Number, "owner_id", order.OwnerID, "lines", len(order.Lines))
	s.dispatcher.PublishAsync(ctx, event.NewEvent(event.TypeOrderCreated, order.ID, actor.UserID, map[string]interface{}{
		event.KeyOrderNumber: order.Number,
		event.KeyOwnerID:     order.OwnerID,
		event.KeyNewStatus:   order.Status.String(),
	}))
	return order, nil
}

// GetOrder loads the full aggregate
func (s *purchaseOrderServiceImpl) GetOrder(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns order headers matching filter
func (s *purchaseOrderServiceImpl) ListOrders(ctx context.Context, filter port.OrderFilter) ([]*entity.PurchaseOrder, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, filter.Status)
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", entity.ErrValidation)
	}
	return s.orders.List(ctx, filter)
}

// UpdateOrder changes header fields of a DRAFT order
func (s *purchaseOrderServiceImpl) UpdateOrder(ctx context.Context, actor entity.Actor, orderID string, in UpdateOrderInput) (*entity.PurchaseOrder, error) {
	if in.SupplierID != nil {
		supplier, err := s.suppliers.GetByID(ctx, strings.TrimSpace(*in.SupplierID))
		if err != nil {
			return nil, err
		}
		if !supplier.IsActive {
			return nil, fmt.Errorf("%w: supplier %s is inactive", entity.ErrValidation, supplier.Code)
		}
	}
	if in.Notes != nil {
		notes := utils.SanitizeText(*in.Notes)
		in.Notes = &notes
	}

	order, _, err := s.mutate(ctx, orderID, "update", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		if err := requireOwnerOrAdmin(order, actor); err != nil {
			return nil, err
		}
		if err := order.UpdateHeader(in); err != nil {
			return nil, err
		}
		order.UpdatedAt = s.now().UTC()
		return nil, nil
	})
	return order, err
}

// AddLine appends a line to a DRAFT order
func (s *purchaseOrderServiceImpl) AddLine(ctx context.Context, actor entity.Actor, orderID string, in entity.LineInput) (*entity.PurchaseOrder, error) {
	if err := entity.ValidateLine(in); err != nil {
		return nil, err
	}

	order, _, err := s.mutate(ctx, orderID, "add_line", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		if err := requireOwnerOrAdmin(order, actor); err != nil {
			return nil, err
		}
		if _, err := order.AddLine(in); err != nil {
			return nil, err
		}
		order.UpdatedAt = s.now().UTC()
		return nil, nil
	})
	return order, err
}

// RemoveLine removes a line from a DRAFT order
func (s *purchaseOrderServiceImpl) RemoveLine(ctx context.Context, actor entity.Actor, orderID, lineID string) (*entity.PurchaseOrder, error) {
	order, _, err := s.mutate(ctx, orderID, "remove_line", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		if err := requireOwnerOrAdmin(order, actor); err != nil {
			return nil, err
		}
		if err := order.RemoveLine(lineID); err != nil {
			return nil, err
		}
		order.UpdatedAt = s.now().UTC()
		return nil, nil
	})
	return order, err
}

// DeleteOrder removes a DRAFT or CANCELLED order with its lines and approvals.
// The audit history is kept.
func (s *purchaseOrderServiceImpl) DeleteOrder(ctx context.Context, actor entity.Actor, orderID string) error {
	err := s.retry(ctx, orderID, "delete", func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(order, actor); err != nil {
			return err
		}
		if order.Status != workflow.StateDraft && order.Status != workflow.StateCancelled {
			return fmt.Errorf("%w: only DRAFT or CANCELLED orders can be deleted, order %s is %s", entity.ErrInvalidState, order.ID, order.Status)
		}
		return s.orders.Delete(ctx, orderID, order.Version)
	})
	if err != nil {
		if !isCallerError(err) {
			s.logger.Error("Failed to delete order", "error", err, "order_id", orderID)
		}
		return err
	}

	s.logger.Info("Order deleted", "order_id", orderID, "actor", actor.UserID)
	return nil
}

// Submit sends a DRAFT order for approval
func (s *purchaseOrderServiceImpl) Submit(ctx context.Context, actor entity.Actor, orderID string) (*entity.PurchaseOrder, error) {
	order, _, err := s.mutate(ctx, orderID, "submit", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		return s.engine.Submit(ctx, order, actor)
	})
	return order, err
}

// RecordApproval records an APPROVE or REJECT decision on a pending order
func (s *purchaseOrderServiceImpl) RecordApproval(ctx context.Context, approver entity.Actor, orderID, decision, comment string) (*entity.PurchaseOrder, *entity.Approval, error) {
	var approval *entity.Approval
	order, _, err := s.mutate(ctx, orderID, "record_approval", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		a, transition, err := s.engine.RecordApproval(ctx, order, approver, decision, utils.SanitizeText(comment))
		if err != nil {
			return nil, err
		}
		approval = a
		return transition, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, approval, nil
}

// Cancel cancels a DRAFT or PENDING_APPROVAL order
func (s *purchaseOrderServiceImpl) Cancel(ctx context.Context, actor entity.Actor, orderID string) (*entity.PurchaseOrder, error) {
	order, _, err := s.mutate(ctx, orderID, "cancel", func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		return s.engine.Cancel(ctx, order, actor)
	})
	return order, err
}

// MarkFulfilled consumes the "all shipments delivered" signal for an APPROVED order.
// Shipments are checked in the same transaction as the version-guarded save;
// creating a shipment bumps the order version, so a shipment added meanwhile
// forces a reload.
func (s *purchaseOrderServiceImpl) MarkFulfilled(ctx context.Context, orderID string) error {
	_, _, err := s.mutateChecked(ctx, orderID, "fulfill", s.requireDelivered, func(order *entity.PurchaseOrder) (*entity.StatusTransition, error) {
		return s.engine.Fulfill(ctx, order, SystemActorID)
	})
	return err
}

func (s *purchaseOrderServiceImpl) requireDelivered(txCtx context.Context, order *entity.PurchaseOrder) error {
	shipments, err := s.shipments.ListByOrderID(txCtx, order.ID)
	if err != nil {
		return err
	}
	if len(shipments) == 0 {
		return fmt.Errorf("%w: order %s has no shipments", entity.ErrInvalidState, order.ID)
	}
	for _, sh := range shipments {
		if !sh.IsDelivered() {
			return fmt.Errorf("%w: shipment %s of order %s is %s", entity.ErrInvalidState, sh.Number, order.ID, sh.Status)
		}
	}
	return nil
}

// Approvals returns the decisions recorded on an order, oldest first
func (s *purchaseOrderServiceImpl) Approvals(ctx context.Context, orderID string) ([]entity.Approval, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.Approvals, nil
}

// History returns the audit trail of an order
func (s *purchaseOrderServiceImpl) History(ctx context.Context, orderID string) ([]*entity.StatusTransition, error) {
	return s.history.ListByOrderID(ctx, orderID)
}

// PermittedActions lists the triggers configured for the order's current status
func (s *purchaseOrderServiceImpl) PermittedActions(ctx context.Context, orderID string) ([]workflow.Trigger, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.engine.PermittedActions(order), nil
}

// mutate loads the order, applies fn and saves the aggregate together with the
// audit record fn returns.
func (s *purchaseOrderServiceImpl) mutate(
	ctx context.Context,
	orderID, operation string,
	fn func(order *entity.PurchaseOrder) (*entity.StatusTransition, error),
) (*entity.PurchaseOrder, *entity.StatusTransition, error) {
	return s.mutateChecked(ctx, orderID, operation, nil, fn)
}

// mutateChecked is mutate with a check that runs inside the save transaction,
// before the version-guarded write. A stale version reloads and reapplies fn.
func (s *purchaseOrderServiceImpl) mutateChecked(
	ctx context.Context,
	orderID, operation string,
	check func(txCtx context.Context, order *entity.PurchaseOrder) error,
	fn func(order *entity.PurchaseOrder) (*entity.StatusTransition, error),
) (*entity.PurchaseOrder, *entity.StatusTransition, error) {
	var (
		saved      *entity.PurchaseOrder
		transition *entity.StatusTransition
	)

	err := s.retry(ctx, orderID, operation, func() error {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		expected := order.Version

		t, err := fn(order)
		if err != nil {
			return err
		}

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if check != nil {
				if err := check(txCtx, order); err != nil {
					return err
				}
			}
			if err := s.orders.Save(txCtx, order, expected); err != nil {
				return err
			}
			if t != nil {
				if err := s.history.Create(txCtx, t); err != nil {
					return fmt.Errorf("create history: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			if !isCallerError(err) {
				s.logger.Error("Failed to save order", "error", err, "order_id", orderID, "operation", operation)
			}
			return err
		}

		saved, transition = order, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if transition != nil {
		s.afterTransition(ctx, saved, transition)
	}
	return saved, transition, nil
}

// retry runs fn until it stops failing with a concurrency conflict, up to
// maxAttempts times. Every other error is returned as is.
func (s *purchaseOrderServiceImpl) retry(ctx context.Context, orderID, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = fn(); !errors.Is(err, entity.ErrConcurrencyConflict) {
			return err
		}

		s.logger.Info("Concurrent update, retrying", "order_id", orderID, "operation", operation, "attempt", attempt)
		if attempt < s.maxAttempts {
			if werr := s.wait(ctx, attempt); werr != nil {
				return werr
			}
		}
	}
	return err
}

// afterTransition logs a committed transition and emits its events
func (s *purchaseOrderServiceImpl) afterTransition(ctx context.Context, order *entity.PurchaseOrder, t *entity.StatusTransition) {
	s.logger.Info("Order status changed",
		"order_id", order.ID,
		"actor", t.ActorID,
		"trigger", t.Action,
		"from", t.PreviousStatus.String(),
		"to", t.NewStatus.String(),
		"version", order.Version)

	payload := map[string]interface{}{
		event.KeyPreviousStatus: t.PreviousStatus.String(),
		event.KeyNewStatus:      t.NewStatus.String(),
		event.KeyOrderNumber:    order.Number,
		event.KeyOwnerID:        order.OwnerID,
	}
	if t.Comment != "" {
		payload[event.KeyComment] = t.Comment
	}

	correlationID := uuid.NewString()
	evts := []*event.Event{
		event.NewEventWithCorrelation(event.TypeStatusChanged, order.ID, t.ActorID, payload, correlationID),
	}
	if typ, ok := statusEventType(t.NewStatus); ok {
		evts = append(evts, event.NewEventWithCorrelation(typ, order.ID, t.ActorID, payload, correlationID))
	}
	s.dispatcher.PublishAsync(ctx, evts...)
}

func statusEventType(status workflow.State) (event.Type, bool) {
	switch status {
	case workflow.StatePendingApproval:
		return event.TypeOrderSubmitted, true
	case workflow.StateApproved:
		return event.TypeOrderApproved, true
	case workflow.StateRejected:
		return event.TypeOrderRejected, true
	case workflow.StateCancelled:
		return event.TypeOrderCancelled, true
	case workflow.StateFulfilled:
		return event.TypeOrderFulfilled, true
	default:
		return "", false
	}
}

// isCallerError reports errors that describe the request rather than a failure
func isCallerError(err error) bool {
	for _, kind := range []error{
		entity.ErrValidation,
		entity.ErrInvalidState,
		entity.ErrAuthority,
		entity.ErrDuplicateAction,
		entity.ErrConcurrencyConflict,
		entity.ErrNumberTaken,
		entity.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

func requireOwnerOrAdmin(order *entity.PurchaseOrder, actor entity.Actor) error {
	if actor.IsAdmin || order.IsOwnedBy(actor.UserID) {
		return nil
	}
	return fmt.Errorf("%w: only the owner or an administrator may modify order %s", entity.ErrAuthority, order.ID)
}

// generateOrderNumber returns PO-YYYYMMDD-XXXXXXXXXX
func generateOrderNumber(now time.Time) string {
	return generateNumber("PO", now)
}

// generateNumber returns PREFIX-YYYYMMDD- followed by 10 random hex digits
func generateNumber(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}
