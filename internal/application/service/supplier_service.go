package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/pkg/utils"
	"github.com/google/uuid"
)

// CreateSupplierInput carries the fields of a new supplier
type CreateSupplierInput struct {
	Name        string
	Code        string
	ContactName string
	Email       string
	Phone       string
	Address     string
}

// SupplierService manages suppliers
type SupplierService interface {
	CreateSupplier(ctx context.Context, actor entity.Actor, in CreateSupplierInput) (*entity.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*entity.Supplier, error)
	ListSuppliers(ctx context.Context, limit, offset int) ([]*entity.Supplier, error)
}

type supplierServiceImpl struct {
	suppliers port.SupplierRepository
	logger    Logger
}

// NewSupplierService creates a new SupplierService
func NewSupplierService(suppliers port.SupplierRepository, logger Logger) SupplierService {
	return &supplierServiceImpl{suppliers: suppliers, logger: logger}
}

// CreateSupplier registers a supplier. Only admins and procurement managers may do so.
func (s *supplierServiceImpl) CreateSupplier(ctx context.Context, actor entity.Actor, in CreateSupplierInput) (*entity.Supplier, error) {
	if !actor.IsAdmin && actor.Role != entity.RoleProcurementManager {
		return nil, fmt.Errorf("%w: role %s may not manage suppliers", entity.ErrAuthority, actor.Role)
	}

	name := utils.SanitizeText(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: supplier name is required", entity.ErrValidation)
	}
	code, ok := utils.NormalizeCode(in.Code)
	if !ok {
		return nil, fmt.Errorf("%w: invalid supplier code %q", entity.ErrValidation, in.Code)
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: invalid email %q", entity.ErrValidation, email)
		}
	}

	now := time.Now().UTC()
	supplier := &entity.Supplier{
		ID:          uuid.NewString(),
		Name:        name,
		Code:        code,
		ContactName: strings.TrimSpace(in.ContactName),
		Email:       email,
		Phone:       strings.TrimSpace(in.Phone),
		Address:     utils.SanitizeText(in.Address),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.suppliers.Create(ctx, supplier); err != nil {
		s.logger.Error("Failed to create supplier", "error", err, "code", code)
		return nil, err
	}

	s.logger.Info("Supplier created", "supplier_id", supplier.ID, "code", code)
	return supplier, nil
}

func (s *supplierServiceImpl) GetSupplier(ctx context.Context, id string) (*entity.Supplier, error) {
	return s.suppliers.GetByID(ctx, id)
}

func (s *supplierServiceImpl) ListSuppliers(ctx context.Context, limit, offset int) ([]*entity.Supplier, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", entity.ErrValidation)
	}
	return s.suppliers.List(ctx, limit, offset)
}
