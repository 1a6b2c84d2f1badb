package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReportService_PurchaseOrderReport(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	f.draft(t, 100, 50)
	f.pending(t, 20)
	_, err := f.svc.CreateOrder(ctx, owner, CreateOrderInput{
		SupplierID: "sup-1",
		Currency:   "EUR",
		Lines:      []entity.LineInput{{ProductID: "x", Quantity: 2, UnitPrice: decimal.RequireFromString("7.50")}},
	})
	require.NoError(t, err)

	suppliers := &memSupplierRepo{suppliers: map[string]*entity.Supplier{"sup-1": {ID: "sup-1", Name: "Acme"}}}
	storage := &mockStorage{files: map[string][]byte{}}
	svc := NewReportService(f.orders, suppliers, storage, &mockLogger{})

	report, err := svc.PurchaseOrderReport(ctx, port.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.Regexp(t, `^reports/purchase-orders-\d{8}-\d{6}\.\d{3}\.xlsx$`, report.Path)
	assert.True(t, storage.Exists(ctx, report.Path))

	wb, err := excelize.OpenReader(bytes.NewReader(report.Content))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(reportSheet)
	require.NoError(t, err)
	// header, three orders, one totals row per currency
	require.Len(t, rows, 6)
	assert.Equal(t, "PO Number", rows[0][0])
	assert.Equal(t, "Acme", rows[1][1])
	assert.Equal(t, []string{"TOTAL", "", "", "", "EUR"}, rows[4][:5])
	assert.Equal(t, []string{"TOTAL", "", "", "", "USD"}, rows[5][:5])

	eur, err := wb.GetCellValue(reportSheet, "F5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "15", eur)
	usd, err := wb.GetCellValue(reportSheet, "F6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "170", usd)
}

func TestReportService_FilterAndValidation(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.draft(t, 1)
	f.pending(t, 2)

	svc := NewReportService(f.orders, &memSupplierRepo{suppliers: map[string]*entity.Supplier{"sup-1": {ID: "sup-1", Name: "Acme"}}},
		&mockStorage{files: map[string][]byte{}}, &mockLogger{})

	report, err := svc.PurchaseOrderReport(ctx, port.OrderFilter{Status: workflow.StatePendingApproval})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rows)

	_, err = svc.PurchaseOrderReport(ctx, port.OrderFilter{Status: "BOGUS"})
	assert.ErrorIs(t, err, entity.ErrValidation)

	empty, err := svc.PurchaseOrderReport(ctx, port.OrderFilter{SupplierID: "other"})
	require.NoError(t, err)
	assert.Zero(t, empty.Rows)
}
