package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/event"
)

func cloneOrder(o *entity.PurchaseOrder) *entity.PurchaseOrder {
	cp := *o
	cp.Lines = append([]entity.Line{}, o.Lines...)
	cp.Approvals = append([]entity.Approval{}, o.Approvals...)
	return &cp
}

// memOrderRepo is a versioned in-memory OrderRepository
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*entity.PurchaseOrder
	saves  int
	// onSave runs before the version check of every Save
	onSave func(id string)
	// onDelete runs before the version check of every Delete
	onDelete func(id string)
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*entity.PurchaseOrder)}
}

func (m *memOrderRepo) Create(_ context.Context, o *entity.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("%w: order number %s", entity.ErrNumberTaken, o.Number)
		}
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*entity.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *memOrderRepo) Save(_ context.Context, o *entity.PurchaseOrder, expectedVersion int64) error {
	if m.onSave != nil {
		m.onSave(o.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, o.ID)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: purchase order %s", entity.ErrConcurrencyConflict, o.ID)
	}
	seen := make(map[string]bool)
	for _, a := range stored.Approvals {
		seen[a.ApproverID] = true
	}
	if len(o.Approvals) > len(stored.Approvals) {
		for _, a := range o.Approvals[len(stored.Approvals):] {
			if seen[a.ApproverID] {
				return fmt.Errorf("%w: approver %s", entity.ErrDuplicateAction, a.ApproverID)
			}
		}
	}

	m.saves++
	o.Version = expectedVersion + 1
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

// bump simulates a write by someone else
func (m *memOrderRepo) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Version++
}

func (m *memOrderRepo) List(_ context.Context, f port.OrderFilter) ([]*entity.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.PurchaseOrder
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.SupplierID != "" && o.SupplierID != f.SupplierID {
			continue
		}
		if f.OwnerID != "" && o.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })

	if f.Offset >= len(out) {
		return []*entity.PurchaseOrder{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memOrderRepo) Delete(_ context.Context, id string, expectedVersion int64) error {
	if m.onDelete != nil {
		m.onDelete(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: purchase order %s", entity.ErrNotFound, id)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: purchase order %s", entity.ErrConcurrencyConflict, id)
	}
	delete(m.orders, id)
	return nil
}

type memHistoryRepo struct {
	mu      sync.Mutex
	entries []*entity.StatusTransition
}

func (m *memHistoryRepo) Create(_ context.Context, t *entity.StatusTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, t)
	return nil
}

func (m *memHistoryRepo) ListByOrderID(_ context.Context, orderID string) ([]*entity.StatusTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.StatusTransition{}
	for _, t := range m.entries {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memSupplierRepo struct {
	suppliers map[string]*entity.Supplier
}

func (m *memSupplierRepo) Create(_ context.Context, s *entity.Supplier) error {
	for _, existing := range m.suppliers {
		if existing.Code == s.Code {
			return fmt.Errorf("%w: supplier code %s already exists", entity.ErrValidation, s.Code)
		}
	}
	m.suppliers[s.ID] = s
	return nil
}

func (m *memSupplierRepo) GetByID(_ context.Context, id string) (*entity.Supplier, error) {
	if s, ok := m.suppliers[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: supplier %s", entity.ErrNotFound, id)
}

func (m *memSupplierRepo) List(_ context.Context, limit, offset int) ([]*entity.Supplier, error) {
	out := []*entity.Supplier{}
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	return out, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMemUserRepo(users ...*entity.User) *memUserRepo {
	m := &memUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUserRepo) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s already registered", entity.ErrValidation, u.Email)
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user %s", entity.ErrNotFound, id)
}

func (m *memUserRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", entity.ErrNotFound, email)
}

func (m *memUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("%w: user %s", entity.ErrNotFound, id)
	}
	u.LastLoginAt = &at
	return nil
}

func (m *memUserRepo) Update(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("%w: user %s", entity.ErrNotFound, u.ID)
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) List(_ context.Context, limit, offset int) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if offset >= len(out) {
		return []*entity.User{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memShipmentRepo struct {
	mu        sync.Mutex
	shipments []*entity.Shipment
	// afterList runs once the shipments of an order have been read
	afterList func(orderID string)
}

func (m *memShipmentRepo) Create(_ context.Context, s *entity.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.shipments {
		if existing.Number == s.Number {
			return fmt.Errorf("%w: shipment number %s", entity.ErrNumberTaken, s.Number)
		}
	}
	cp := *s
	m.shipments = append(m.shipments, &cp)
	return nil
}

func (m *memShipmentRepo) GetByID(_ context.Context, id string) (*entity.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shipments {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: shipment %s", entity.ErrNotFound, id)
}

func (m *memShipmentRepo) ListByOrderID(_ context.Context, orderID string) ([]*entity.Shipment, error) {
	m.mu.Lock()
	out := []*entity.Shipment{}
	for _, s := range m.shipments {
		if s.OrderID == orderID {
			cp := *s
			out = append(out, &cp)
		}
	}
	hook := m.afterList
	m.mu.Unlock()

	if hook != nil {
		hook(orderID)
	}
	return out, nil
}

func (m *memShipmentRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shipments {
		if s.ID == id {
			s.Status = entity.ShipmentStatusDelivered
			s.DeliveredAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: shipment %s", entity.ErrNotFound, id)
}

func (m *memShipmentRepo) ListFulfillableOrderIDs(context.Context, int) ([]string, error) {
	return nil, nil
}

type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockAuthority struct {
	limits map[string]entity.ApprovalLimit
}

func (m *mockAuthority) ApprovalLimit(_ context.Context, userID string) (entity.ApprovalLimit, error) {
	if l, ok := m.limits[userID]; ok {
		return l, nil
	}
	return entity.NoApproval(), nil
}

// recordingDispatcher captures published events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) Subscribe(event.Type, string, dispatcher.Handler) {}
func (d *recordingDispatcher) Unsubscribe(event.Type, string)                   {}
func (d *recordingDispatcher) Handlers(event.Type) []dispatcher.HandlerInfo     { return nil }
func (d *recordingDispatcher) Close() error                                     { return nil }

func (d *recordingDispatcher) Publish(_ context.Context, evt *event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	return nil
}

func (d *recordingDispatcher) PublishAsync(ctx context.Context, evts ...*event.Event) {
	for _, e := range evts {
		_ = d.Publish(ctx, e)
	}
}

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Type, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *mockStorage) Save(_ context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[path]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return c, nil
}

func (m *mockStorage) Exists(_ context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *mockStorage) List(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		if strings.HasPrefix(p, dir+"/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockStorage) GetFullPath(p string) string { return "/mem/" + p }
