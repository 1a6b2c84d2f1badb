package port

import (
	"context"
	"time"

	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
)

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	Status     workflow.State
	SupplierID string
	OwnerID    string
	Limit      int
	Offset     int
}

// OrderRepository persists the PurchaseOrder aggregate (header, lines and approvals)
type OrderRepository interface {
	// Create inserts a new order together with its lines
	Create(ctx context.Context, order *entity.PurchaseOrder) error

	// GetByID loads the full aggregate; returns entity.ErrNotFound when absent
	GetByID(ctx context.Context, id string) (*entity.PurchaseOrder, error)

	// Save writes the aggregate if the stored version equals expectedVersion.
	// Lines are replaced, approvals are appended, and order.Version is bumped on success.
	// Returns entity.ErrConcurrencyConflict on a stale version.
	Save(ctx context.Context, order *entity.PurchaseOrder, expectedVersion int64) error

	// List returns order headers (without lines or approvals) matching filter, newest first
	List(ctx context.Context, filter OrderFilter) ([]*entity.PurchaseOrder, error)

	// Delete removes the order and the lines and approvals it owns if the stored
	// version equals expectedVersion. Returns entity.ErrConcurrencyConflict on a stale version.
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// HistoryRepository persists the append-only status audit trail
type HistoryRepository interface {
	Create(ctx context.Context, transition *entity.StatusTransition) error
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.StatusTransition, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Update writes the profile, role, active flag and approval limit of user
	Update(ctx context.Context, user *entity.User) error
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

// SupplierRepository defines persistence operations for Supplier
type SupplierRepository interface {
	Create(ctx context.Context, supplier *entity.Supplier) error
	GetByID(ctx context.Context, id string) (*entity.Supplier, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Supplier, error)
}

// ShipmentRepository defines persistence operations for Shipment
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *entity.Shipment) error
	GetByID(ctx context.Context, id string) (*entity.Shipment, error)
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.Shipment, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// ListFulfillableOrderIDs returns APPROVED orders that have shipments, all of them delivered
	ListFulfillableOrderIDs(ctx context.Context, limit int) ([]string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
