package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/garyjia/procurement/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/procurement/migrations"
	"github.com/garyjia/procurement/pkg/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type repos struct {
	db        *database.DB
	tx        *sqldb.TxManager
	orders    *OrderRepository
	history   *HistoryRepository
	users     *UserRepository
	suppliers *SupplierRepository
	shipments *ShipmentRepository
}

func migrateAndBuild(t *testing.T, db *database.DB) *repos {
	t.Helper()
	logger := zap.NewNop()

	fsys, err := migrations.For(db.Dialect)
	require.NoError(t, err)
	require.NoError(t, database.NewMigrator(db, logger).Run(context.Background(), fsys))

	return &repos{
		db:        db,
		tx:        sqldb.NewTxManager(db, logger),
		orders:    NewOrderRepository(db, logger),
		history:   NewHistoryRepository(db, logger),
		users:     NewUserRepository(db, logger),
		suppliers: NewSupplierRepository(db, logger),
		shipments: NewShipmentRepository(db, logger),
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func seedUser(t *testing.T, r *repos, email string) *entity.User {
	t.Helper()
	u := &entity.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     "Test User",
		PasswordHash: "hash",
		Role:         entity.RoleRequester,
		IsActive:     true,
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	require.NoError(t, r.users.Create(context.Background(), u))
	return u
}

func seedSupplier(t *testing.T, r *repos, code string) *entity.Supplier {
	t.Helper()
	s := &entity.Supplier{
		ID:        uuid.NewString(),
		Name:      "Acme " + code,
		Code:      code,
		IsActive:  true,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	require.NoError(t, r.suppliers.Create(context.Background(), s))
	return s
}

func seedOrder(t *testing.T, r *repos, owner *entity.User, supplier *entity.Supplier, prices ...string) *entity.PurchaseOrder {
	t.Helper()
	po, err := entity.NewPurchaseOrder("PO-"+uuid.NewString()[:8], supplier.ID, owner.ID, "USD", now())
	require.NoError(t, err)
	for i, p := range prices {
		_, err := po.AddLine(entity.LineInput{
			ProductID: "product-" + string(rune('a'+i)),
			Quantity:  int64(i + 1),
			UnitPrice: decimal.RequireFromString(p),
		})
		require.NoError(t, err)
	}
	require.NoError(t, r.orders.Create(context.Background(), po))
	return po
}

// runRepositoryContract exercises every repository against a migrated database
func runRepositoryContract(t *testing.T, r *repos) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		u := seedUser(t, r, "Alice@Example.com")

		got, err := r.users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, entity.RoleRequester, got.Role)
		assert.Nil(t, got.ApprovalLimit)
		assert.Nil(t, got.LastLoginAt)

		byEmail, err := r.users.GetByEmail(ctx, "ALICE@example.com ")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		dup := *u
		dup.ID = uuid.NewString()
		assert.ErrorIs(t, r.users.Create(ctx, &dup), entity.ErrValidation)

		require.NoError(t, r.users.UpdateLastLogin(ctx, u.ID, now()))
		got, err = r.users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)

		_, err = r.users.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)
		assert.ErrorIs(t, r.users.UpdateLastLogin(ctx, "missing", now()), entity.ErrNotFound)

		limit := decimal.RequireFromString("2500.50")
		withLimit := &entity.User{
			ID: uuid.NewString(), Email: "mgr@example.com", PasswordHash: "h",
			Role: entity.RoleProcurementManager, IsActive: true, ApprovalLimit: &limit,
			CreatedAt: now(), UpdatedAt: now(),
		}
		require.NoError(t, r.users.Create(ctx, withLimit))
		got, err = r.users.GetByID(ctx, withLimit.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ApprovalLimit)
		assert.True(t, limit.Equal(*got.ApprovalLimit))

		got.Role = entity.RoleDirector
		got.FullName = "Manager Renamed"
		got.IsActive = false
		got.ApprovalLimit = nil
		got.UpdatedAt = now()
		require.NoError(t, r.users.Update(ctx, got))

		updated, err := r.users.GetByID(ctx, withLimit.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.RoleDirector, updated.Role)
		assert.Equal(t, "Manager Renamed", updated.FullName)
		assert.False(t, updated.IsActive)
		assert.Nil(t, updated.ApprovalLimit)
		assert.Equal(t, "h", updated.PasswordHash)

		missing := *updated
		missing.ID = "missing"
		assert.ErrorIs(t, r.users.Update(ctx, &missing), entity.ErrNotFound)

		list, err := r.users.List(ctx, 100, 0)
		require.NoError(t, err)
		emails := make([]string, 0, len(list))
		for _, u := range list {
			emails = append(emails, u.Email)
		}
		assert.Contains(t, emails, "alice@example.com")
		assert.Contains(t, emails, "mgr@example.com")
	})

	t.Run("suppliers", func(t *testing.T) {
		a := seedSupplier(t, r, "SUP-A")
		seedSupplier(t, r, "SUP-B")

		got, err := r.suppliers.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "SUP-A", got.Code)
		assert.True(t, got.IsActive)

		list, err := r.suppliers.List(ctx, 10, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(list), 2)

		dup := *a
		dup.ID = uuid.NewString()
		assert.ErrorIs(t, r.suppliers.Create(ctx, &dup), entity.ErrValidation)

		_, err = r.suppliers.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("order aggregate round trip", func(t *testing.T) {
		owner := seedUser(t, r, "owner1@example.com")
		supplier := seedSupplier(t, r, "SUP-ORD1")
		po := seedOrder(t, r, owner, supplier, "10.50", "3.25")

		got, err := r.orders.GetByID(ctx, po.ID)
		require.NoError(t, err)
		assert.Equal(t, po.Number, got.Number)
		assert.Equal(t, workflow.StateDraft, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, decimal.RequireFromString("17.00").Equal(got.Total), got.Total.String())
		require.Len(t, got.Lines, 2)
		assert.Equal(t, po.Lines[0].ID, got.Lines[0].ID)
		assert.Equal(t, po.Lines[1].ID, got.Lines[1].ID)
		assert.Equal(t, int64(2), got.Lines[1].Quantity)
		assert.True(t, decimal.RequireFromString("6.50").Equal(got.Lines[1].Subtotal))
		assert.Empty(t, got.Approvals)

		_, err = r.orders.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)

		clash, err := entity.NewPurchaseOrder(po.Number, supplier.ID, owner.ID, "USD", now())
		require.NoError(t, err)
		assert.ErrorIs(t, r.orders.Create(ctx, clash), entity.ErrNumberTaken)
	})

	t.Run("order save with optimistic version", func(t *testing.T) {
		owner := seedUser(t, r, "owner2@example.com")
		supplier := seedSupplier(t, r, "SUP-ORD2")
		po := seedOrder(t, r, owner, supplier, "100")

		po.Status = workflow.StatePendingApproval
		po.Approvals = append(po.Approvals, entity.Approval{
			ID: uuid.NewString(), OrderID: po.ID, ApproverID: "approver-1",
			Decision: entity.DecisionReject, Comment: "too pricey", Timestamp: now(),
		})
		require.NoError(t, r.orders.Save(ctx, po, 1))
		assert.Equal(t, int64(2), po.Version)

		// saving again with the same approvals does not duplicate them
		require.NoError(t, r.orders.Save(ctx, po, 2))

		got, err := r.orders.GetByID(ctx, po.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Version)
		assert.Equal(t, workflow.StatePendingApproval, got.Status)
		require.Len(t, got.Approvals, 1)
		assert.Equal(t, "too pricey", got.Approvals[0].Comment)

		stale := *got
		err = r.orders.Save(ctx, &stale, 1)
		assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)
		assert.Equal(t, int64(3), stale.Version)

		missing := *got
		missing.ID = "missing"
		assert.ErrorIs(t, r.orders.Save(ctx, &missing, 1), entity.ErrNotFound)
	})

	t.Run("order save rejects second decision by same approver", func(t *testing.T) {
		owner := seedUser(t, r, "owner3@example.com")
		supplier := seedSupplier(t, r, "SUP-ORD3")
		po := seedOrder(t, r, owner, supplier, "5")

		po.Approvals = append(po.Approvals, entity.Approval{
			ID: uuid.NewString(), ApproverID: "same", Decision: entity.DecisionApprove, Timestamp: now(),
		})
		require.NoError(t, r.orders.Save(ctx, po, po.Version))

		po.Approvals = append(po.Approvals, entity.Approval{
			ID: uuid.NewString(), ApproverID: "same", Decision: entity.DecisionReject, Timestamp: now(),
		})
		err := r.orders.Save(ctx, po, po.Version)
		assert.ErrorIs(t, err, entity.ErrDuplicateAction)

		got, err := r.orders.GetByID(ctx, po.ID)
		require.NoError(t, err)
		assert.Len(t, got.Approvals, 1)
	})

	t.Run("concurrent saves on one version", func(t *testing.T) {
		owner := seedUser(t, r, "owner4@example.com")
		supplier := seedSupplier(t, r, "SUP-ORD4")
		po := seedOrder(t, r, owner, supplier, "42")

		var (
			wg   sync.WaitGroup
			errs = make([]error, 2)
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				copyPO, err := r.orders.GetByID(ctx, po.ID)
				if err != nil {
					errs[i] = err
					return
				}
				copyPO.Notes = "writer"
				errs[i] = r.orders.Save(ctx, copyPO, 1)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("order list and delete", func(t *testing.T) {
		owner := seedUser(t, r, "owner5@example.com")
		supplier := seedSupplier(t, r, "SUP-ORD5")
		keep := seedOrder(t, r, owner, supplier, "1")
		drop := seedOrder(t, r, owner, supplier, "2", "3")

		list, err := r.orders.List(ctx, port.OrderFilter{SupplierID: supplier.ID})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = r.orders.List(ctx, port.OrderFilter{SupplierID: supplier.ID, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = r.orders.List(ctx, port.OrderFilter{OwnerID: owner.ID, Status: workflow.StateApproved})
		require.NoError(t, err)
		assert.Empty(t, list)

		// a stale version leaves the whole aggregate in place
		assert.ErrorIs(t, r.orders.Delete(ctx, drop.ID, drop.Version+1), entity.ErrConcurrencyConflict)
		got, err := r.orders.GetByID(ctx, drop.ID)
		require.NoError(t, err)
		assert.Len(t, got.Lines, 2)

		require.NoError(t, r.orders.Delete(ctx, drop.ID, drop.Version))
		_, err = r.orders.GetByID(ctx, drop.ID)
		assert.ErrorIs(t, err, entity.ErrNotFound)
		assert.ErrorIs(t, r.orders.Delete(ctx, drop.ID, drop.Version), entity.ErrNotFound)

		var lines int
		require.NoError(t, r.db.QueryRow(r.db.Rebind("SELECT COUNT(*) FROM purchase_order_lines WHERE order_id = ?"), drop.ID).Scan(&lines))
		assert.Zero(t, lines)

		_, err = r.orders.GetByID(ctx, keep.ID)
		assert.NoError(t, err)
	})

	t.Run("history", func(t *testing.T) {
		orderID := uuid.NewString()
		for _, tr := range []*entity.StatusTransition{
			{OrderID: orderID, ActorID: "u", Action: entity.ActionCreate, NewStatus: workflow.StateDraft, Timestamp: now()},
			{OrderID: orderID, ActorID: "u", Action: entity.ActionSubmit, PreviousStatus: workflow.StateDraft, NewStatus: workflow.StatePendingApproval, Timestamp: now()},
		} {
			require.NoError(t, r.history.Create(ctx, tr))
			assert.Positive(t, tr.ID)
		}

		list, err := r.history.ListByOrderID(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, entity.ActionCreate, list[0].Action)
		assert.Equal(t, workflow.StatePendingApproval, list[1].NewStatus)
		assert.Equal(t, workflow.StateDraft, list[1].PreviousStatus)
	})

	t.Run("history joins caller transaction", func(t *testing.T) {
		orderID := uuid.NewString()
		err := r.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			require.NoError(t, r.history.Create(txCtx, &entity.StatusTransition{
				OrderID: orderID, ActorID: "u", Action: entity.ActionCancel, NewStatus: workflow.StateCancelled, Timestamp: now(),
			}))
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		list, err := r.history.ListByOrderID(ctx, orderID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("shipments and fulfillable orders", func(t *testing.T) {
		owner := seedUser(t, r, "owner6@example.com")
		supplier := seedSupplier(t, r, "SUP-SHIP")
		po := seedOrder(t, r, owner, supplier, "9")
		po.Status = workflow.StateApproved
		require.NoError(t, r.orders.Save(ctx, po, po.Version))

		ids, err := r.shipments.ListFulfillableOrderIDs(ctx, 10)
		require.NoError(t, err)
		assert.NotContains(t, ids, po.ID)

		var shipments []*entity.Shipment
		for i := 0; i < 2; i++ {
			s := &entity.Shipment{
				ID: uuid.NewString(), Number: "SHP-" + uuid.NewString()[:8], OrderID: po.ID,
				Carrier: "UPS", Status: entity.ShipmentStatusInTransit, CreatedAt: now(), UpdatedAt: now(),
			}
			require.NoError(t, r.shipments.Create(ctx, s))
			shipments = append(shipments, s)
		}

		require.NoError(t, r.shipments.MarkDelivered(ctx, shipments[0].ID, now()))
		ids, err = r.shipments.ListFulfillableOrderIDs(ctx, 10)
		require.NoError(t, err)
		assert.NotContains(t, ids, po.ID)

		require.NoError(t, r.shipments.MarkDelivered(ctx, shipments[1].ID, now()))
		ids, err = r.shipments.ListFulfillableOrderIDs(ctx, 10)
		require.NoError(t, err)
		assert.Contains(t, ids, po.ID)

		got, err := r.shipments.GetByID(ctx, shipments[0].ID)
		require.NoError(t, err)
		assert.True(t, got.IsDelivered())
		require.NotNil(t, got.DeliveredAt)

		list, err := r.shipments.ListByOrderID(ctx, po.ID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		clash := *shipments[0]
		clash.ID = uuid.NewString()
		assert.ErrorIs(t, r.shipments.Create(ctx, &clash), entity.ErrNumberTaken)

		assert.ErrorIs(t, r.shipments.MarkDelivered(ctx, "missing", now()), entity.ErrNotFound)
		_, err = r.shipments.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}
