package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder is the aggregate root for a request to buy goods from a supplier.
// It exclusively owns its lines and approvals. Status only changes through the
// approval workflow engine.
type PurchaseOrder struct {
	ID               string          `json:"id"`
	Number           string          `json:"po_number"`
	SupplierID       string          `json:"supplier_id"`
	OwnerID          string          `json:"owner_id"`
	Currency         string          `json:"currency"`
	Notes            string          `json:"notes,omitempty"`
	ExpectedDelivery *time.Time      `json:"expected_delivery,omitempty"`
	Status           workflow.State  `json:"status"`
	Total            decimal.Decimal `json:"total_amount"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Lines            []Line          `json:"lines"`
	Approvals        []Approval      `json:"approvals"`
}

// Line is a single product line on a purchase order
type Line struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Description string          `json:"description,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// LineInput carries the caller-supplied fields of a new line
type LineInput struct {
	ProductID   string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// HeaderUpdate carries header fields to change. Nil fields are left as they are.
type HeaderUpdate struct {
	SupplierID       *string
	Currency         *string
	Notes            *string
	ExpectedDelivery *time.Time
}

// NewPurchaseOrder creates a DRAFT order with no lines
func NewPurchaseOrder(number, supplierID, ownerID, currency string, now time.Time) (*PurchaseOrder, error) {
	if strings.TrimSpace(supplierID) == "" {
		return nil, fmt.Errorf("%w: supplier is required", ErrValidation)
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	currency = strings.ToUpper(currency)
	if !IsCurrencyCode(currency) {
		return nil, fmt.Errorf("%w: currency %q must be a 3-letter code", ErrValidation, currency)
	}

	return &PurchaseOrder{
		ID:         uuid.NewString(),
		Number:     number,
		SupplierID: supplierID,
		OwnerID:    ownerID,
		Currency:   currency,
		Status:     workflow.StateDraft,
		Total:      decimal.Zero,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		Lines:      []Line{},
		Approvals:  []Approval{},
	}, nil
}

// UpdateHeader applies u while the order is in DRAFT. Nothing changes on error.
func (po *PurchaseOrder) UpdateHeader(u HeaderUpdate) error {
	if po.Status != workflow.StateDraft {
		return fmt.Errorf("%w: header is immutable once order is %s", ErrInvalidState, po.Status)
	}

	supplierID := po.SupplierID
	if u.SupplierID != nil {
		supplierID = strings.TrimSpace(*u.SupplierID)
		if supplierID == "" {
			return fmt.Errorf("%w: supplier is required", ErrValidation)
		}
	}
	currency := po.Currency
	if u.Currency != nil {
		currency = strings.ToUpper(strings.TrimSpace(*u.Currency))
		if !IsCurrencyCode(currency) {
			return fmt.Errorf("%w: currency %q must be a 3-letter code", ErrValidation, currency)
		}
	}

	po.SupplierID = supplierID
	po.Currency = currency
	if u.Notes != nil {
		po.Notes = *u.Notes
	}
	if u.ExpectedDelivery != nil {
		t := *u.ExpectedDelivery
		po.ExpectedDelivery = &t
	}
	return nil
}

// IsCurrencyCode reports whether code looks like an ISO 4217 alphabetic code
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ValidateLine checks a line input without touching any order
func ValidateLine(in LineInput) error {
	if strings.TrimSpace(in.ProductID) == "" {
		return fmt.Errorf("%w: product is required", ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, in.Quantity)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative, got %s", ErrValidation, in.UnitPrice)
	}
	return nil
}

// AddLine appends a line while the order is in DRAFT and recomputes the total
func (po *PurchaseOrder) AddLine(in LineInput) (Line, error) {
	if po.Status != workflow.StateDraft {
		return Line{}, fmt.Errorf("%w: lines are immutable once order is %s", ErrInvalidState, po.Status)
	}
	if err := ValidateLine(in); err != nil {
		return Line{}, err
	}

	line := Line{
		ID:          uuid.NewString(),
		ProductID:   in.ProductID,
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Subtotal:    in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)),
	}
	po.Lines = append(po.Lines, line)
	po.recalcTotal()
	return line, nil
}

// RemoveLine deletes a line while the order is in DRAFT and recomputes the total
func (po *PurchaseOrder) RemoveLine(lineID string) error {
	if po.Status != workflow.StateDraft {
		return fmt.Errorf("%w: lines are immutable once order is %s", ErrInvalidState, po.Status)
	}

	for i, l := range po.Lines {
		if l.ID == lineID {
			po.Lines = append(po.Lines[:i], po.Lines[i+1:]...)
			po.recalcTotal()
			return nil
		}
	}
	return fmt.Errorf("%w: line %s", ErrNotFound, lineID)
}

// recalcTotal keeps Total equal to the sum of line subtotals
func (po *PurchaseOrder) recalcTotal() {
	total := decimal.Zero
	for _, l := range po.Lines {
		total = total.Add(l.Subtotal)
	}
	po.Total = total
}

// IsOwnedBy reports whether userID created the order
func (po *PurchaseOrder) IsOwnedBy(userID string) bool {
	return po.OwnerID == userID
}

// DecisionBy returns the approval recorded by approverID, if any
func (po *PurchaseOrder) DecisionBy(approverID string) (Approval, bool) {
	for _, a := range po.Approvals {
		if a.ApproverID == approverID {
			return a, true
		}
	}
	return Approval{}, false
}
