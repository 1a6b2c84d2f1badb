package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/pkg/database"
	"go.uber.org/zap"
)

// SupplierRepository implements port.SupplierRepository
type SupplierRepository struct {
	store
}

// NewSupplierRepository creates a new supplier repository
func NewSupplierRepository(db *database.DB, logger *zap.Logger) *SupplierRepository {
	return &SupplierRepository{store: newStore(db, logger)}
}

const supplierColumns = `id, name, code, contact_name, email, phone, address, is_active, created_at, updated_at`

// Create inserts a supplier; codes are unique
func (r *SupplierRepository) Create(ctx context.Context, s *entity.Supplier) error {
	query := `INSERT INTO suppliers (` + supplierColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.exec(ctx).ExecContext(ctx, r.q(query),
		s.ID, s.Name, s.Code, s.ContactName, s.Email, s.Phone, s.Address, s.IsActive,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: supplier code %s already exists", entity.ErrValidation, s.Code)
		}
		r.logger.Error("Failed to create supplier", zap.String("code", s.Code), zap.Error(err))
		return fmt.Errorf("failed to create supplier: %w", err)
	}
	return nil
}

// GetByID retrieves a supplier by ID
func (r *SupplierRepository) GetByID(ctx context.Context, id string) (*entity.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE id = ?`

	s, err := scanSupplier(r.exec(ctx).QueryRowContext(ctx, r.q(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: supplier %s", entity.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get supplier", zap.String("supplier_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}
	return s, nil
}

// List returns suppliers ordered by name
func (r *SupplierRepository) List(ctx context.Context, limit, offset int) ([]*entity.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers ORDER BY name, id LIMIT ? OFFSET ?`

	rows, err := r.exec(ctx).QueryContext(ctx, r.q(query), clampLimit(limit), max(offset, 0))
	if err != nil {
		r.logger.Error("Failed to list suppliers", zap.Error(err))
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []*entity.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func scanSupplier(row rowScanner) (*entity.Supplier, error) {
	var s entity.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.ContactName, &s.Email, &s.Phone, &s.Address,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify interface compliance
var _ port.SupplierRepository = (*SupplierRepository)(nil)
