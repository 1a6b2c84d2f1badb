package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	reportSheet    = "Purchase Orders"
	reportDir      = "reports"
	reportPageSize = 100
	// maxReportRows stops a runaway export
	maxReportRows = 10000
)

var reportHeader = []interface{}{"PO Number", "Supplier", "Owner", "Status", "Currency", "Total", "Created"}

// Report is a generated spreadsheet
type Report struct {
	Path     string
	FileName string
	Rows     int
	Content  []byte
}

// ReportService exports purchase orders
type ReportService interface {
	PurchaseOrderReport(ctx context.Context, filter port.OrderFilter) (*Report, error)
}

type reportServiceImpl struct {
	orders    port.OrderRepository
	suppliers port.SupplierRepository
	storage   port.FileStorage
	logger    Logger
	now       func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(orders port.OrderRepository, suppliers port.SupplierRepository, storage port.FileStorage, logger Logger) ReportService {
	return &reportServiceImpl{
		orders:    orders,
		suppliers: suppliers,
		storage:   storage,
		logger:    logger,
		now:       time.Now,
	}
}

// PurchaseOrderReport builds an .xlsx workbook with one row per matching order
// and a totals row per currency, and archives it under reports/.
func (s *reportServiceImpl) PurchaseOrderReport(ctx context.Context, filter port.OrderFilter) (*Report, error) {
	orders, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", "G1", boldStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	supplierNames := make(map[string]string)
	totals := make(map[string]decimal.Decimal)

	row := 2
	for _, o := range orders {
		name, err := s.supplierName(ctx, supplierNames, o.SupplierID)
		if err != nil {
			return nil, err
		}

		values := []interface{}{
			o.Number,
			name,
			o.OwnerID,
			o.Status.String(),
			o.Currency,
			o.Total.InexactFloat64(),
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := s.writeRow(f, row, values); err != nil {
			return nil, err
		}
		totals[o.Currency] = totals[o.Currency].Add(o.Total)
		row++
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		if err := s.writeRow(f, row, []interface{}{"TOTAL", "", "", "", c, totals[c].InexactFloat64(), ""}); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(reportSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row), boldStyle); err != nil {
			return nil, fmt.Errorf("failed to style totals: %w", err)
		}
		row++
	}

	if row > 2 {
		if err := f.SetCellStyle(reportSheet, "F2", fmt.Sprintf("F%d", row-1), amountStyle); err != nil {
			return nil, fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(reportSheet, "A", "G", 20); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	fileName := fmt.Sprintf("purchase-orders-%s.xlsx", s.now().UTC().Format("20060102-150405.000"))
	path := reportDir + "/" + fileName
	if err := s.storage.Save(ctx, path, buf.Bytes()); err != nil {
		s.logger.Error("Failed to archive report", "error", err, "path", path)
		return nil, err
	}

	s.logger.Info("Purchase order report generated", "path", path, "orders", len(orders), "currencies", len(currencies))
	return &Report{
		Path:     path,
		FileName: fileName,
		Rows:     len(orders),
		Content:  buf.Bytes(),
	}, nil
}

// collect pages through the repository until the filter is exhausted
func (s *reportServiceImpl) collect(ctx context.Context, filter port.OrderFilter) ([]*entity.PurchaseOrder, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, filter.Status)
	}

	var all []*entity.PurchaseOrder
	page := filter
	page.Limit = reportPageSize
	page.Offset = 0
	for {
		batch, err := s.orders.List(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < reportPageSize || len(all) >= maxReportRows {
			break
		}
		page.Offset += len(batch)
	}
	if len(all) > maxReportRows {
		all = all[:maxReportRows]
	}
	return all, nil
}

func (s *reportServiceImpl) supplierName(ctx context.Context, cache map[string]string, id string) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	supplier, err := s.suppliers.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get supplier %s: %w", id, err)
	}
	cache[id] = supplier.Name
	return supplier.Name, nil
}

func (s *reportServiceImpl) writeRow(f *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
