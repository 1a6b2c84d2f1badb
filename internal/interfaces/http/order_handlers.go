package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/application/service"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LineRequest is one order line in a request body
type LineRequest struct {
	ProductID   string          `json:"product_id" binding:"required"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (r LineRequest) toInput() entity.LineInput {
	return entity.LineInput{
		ProductID:   r.ProductID,
		Description: r.Description,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
	}
}

// CreateOrderRequest is the body of POST /purchase-orders
type CreateOrderRequest struct {
	SupplierID       string        `json:"supplier_id" binding:"required"`
	Currency         string        `json:"currency"`
	Notes            string        `json:"notes"`
	ExpectedDelivery *time.Time    `json:"expected_delivery"`
	Lines            []LineRequest `json:"lines" binding:"dive"`
}

// UpdateOrderRequest is the body of PUT /purchase-orders/:id. Omitted fields are unchanged.
type UpdateOrderRequest struct {
	SupplierID       *string    `json:"supplier_id"`
	Currency         *string    `json:"currency"`
	Notes            *string    `json:"notes"`
	ExpectedDelivery *time.Time `json:"expected_delivery"`
}

// ListOrdersQuery holds the filters of GET /purchase-orders
type ListOrdersQuery struct {
	Status     string `form:"status"`
	SupplierID string `form:"supplier_id"`
	OwnerID    string `form:"owner_id"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

func (q ListOrdersQuery) toFilter() port.OrderFilter {
	return port.OrderFilter{
		Status:     workflow.State(q.Status),
		SupplierID: q.SupplierID,
		OwnerID:    q.OwnerID,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
}

// ApprovalRequest is the body of POST /purchase-orders/:id/approvals
type ApprovalRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}

// ShipmentRequest is the body of POST /purchase-orders/:id/shipments
type ShipmentRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

// OrderResponse is an order together with the actions its status allows
type OrderResponse struct {
	*entity.PurchaseOrder
	PermittedActions []workflow.Trigger `json:"permitted_actions"`
}

// ApprovalResponse is returned after recording a decision
type ApprovalResponse struct {
	Order    *entity.PurchaseOrder `json:"order"`
	Approval *entity.Approval      `json:"approval"`
}

// CreateOrder handles POST /api/v1/purchase-orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	lines := make([]entity.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, l.toInput())
	}

	order, err := h.services.Orders.CreateOrder(c.Request.Context(), mustActor(c), service.CreateOrderInput{
		SupplierID:       req.SupplierID,
		Currency:         req.Currency,
		Notes:            req.Notes,
		ExpectedDelivery: req.ExpectedDelivery,
		Lines:            lines,
	})
	if err != nil {
		h.respondError(c, "create_order", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: order})
}

// UpdateOrder handles PUT /api/v1/purchase-orders/:id
func (h *Handlers) UpdateOrder(c *gin.Context) {
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.services.Orders.UpdateOrder(c.Request.Context(), mustActor(c), c.Param("id"), service.UpdateOrderInput{
		SupplierID:       req.SupplierID,
		Currency:         req.Currency,
		Notes:            req.Notes,
		ExpectedDelivery: req.ExpectedDelivery,
	})
	if err != nil {
		h.respondError(c, "update_order", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// ListOrders handles GET /api/v1/purchase-orders
func (h *Handlers) ListOrders(c *gin.Context) {
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	orders, err := h.services.Orders.ListOrders(c.Request.Context(), q.toFilter())
	if err != nil {
		h.respondError(c, "list_orders", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: orders})
}

// GetOrder handles GET /api/v1/purchase-orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := h.services.Orders.GetOrder(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, "get_order", err)
		return
	}
	actions, err := h.services.Orders.PermittedActions(ctx, order.ID)
	if err != nil {
		h.respondError(c, "get_order", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: OrderResponse{PurchaseOrder: order, PermittedActions: actions}})
}

// DeleteOrder handles DELETE /api/v1/purchase-orders/:id
func (h *Handlers) DeleteOrder(c *gin.Context) {
	if err := h.services.Orders.DeleteOrder(c.Request.Context(), mustActor(c), c.Param("id")); err != nil {
		h.respondError(c, "delete_order", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// AddLine handles POST /api/v1/purchase-orders/:id/lines
func (h *Handlers) AddLine(c *gin.Context) {
	var req LineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.services.Orders.AddLine(c.Request.Context(), mustActor(c), c.Param("id"), req.toInput())
	if err != nil {
		h.respondError(c, "add_line", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: order})
}

// RemoveLine handles DELETE /api/v1/purchase-orders/:id/lines/:lineId
func (h *Handlers) RemoveLine(c *gin.Context) {
	order, err := h.services.Orders.RemoveLine(c.Request.Context(), mustActor(c), c.Param("id"), c.Param("lineId"))
	if err != nil {
		h.respondError(c, "remove_line", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// SubmitOrder handles POST /api/v1/purchase-orders/:id/submit
func (h *Handlers) SubmitOrder(c *gin.Context) {
	order, err := h.services.Orders.Submit(c.Request.Context(), mustActor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "submit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// CancelOrder handles POST /api/v1/purchase-orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	order, err := h.services.Orders.Cancel(c.Request.Context(), mustActor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "cancel", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// RecordApproval handles POST /api/v1/purchase-orders/:id/approvals
func (h *Handlers) RecordApproval(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, approval, err := h.services.Orders.RecordApproval(c.Request.Context(), mustActor(c), c.Param("id"), req.Decision, req.Comment)
	if err != nil {
		h.respondError(c, "record_approval", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: ApprovalResponse{Order: order, Approval: approval}})
}

// ListApprovals handles GET /api/v1/purchase-orders/:id/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	approvals, err := h.services.Orders.Approvals(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: approvals})
}

// ListHistory handles GET /api/v1/purchase-orders/:id/history
func (h *Handlers) ListHistory(c *gin.Context) {
	history, err := h.services.Orders.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_history", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// CreateShipment handles POST /api/v1/purchase-orders/:id/shipments
func (h *Handlers) CreateShipment(c *gin.Context) {
	var req ShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	shipment, err := h.services.Shipments.CreateShipment(c.Request.Context(), mustActor(c), c.Param("id"), req.Carrier, req.TrackingNumber)
	if err != nil {
		h.respondError(c, "create_shipment", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: shipment})
}

// ListShipments handles GET /api/v1/purchase-orders/:id/shipments
func (h *Handlers) ListShipments(c *gin.Context) {
	shipments, err := h.services.Shipments.ListShipments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "list_shipments", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: shipments})
}

// DeliverShipment handles POST /api/v1/shipments/:id/deliver
func (h *Handlers) DeliverShipment(c *gin.Context) {
	shipment, err := h.services.Shipments.MarkDelivered(c.Request.Context(), mustActor(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "deliver_shipment", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: shipment})
}

// PurchaseOrderReport handles GET /api/v1/reports/purchase-orders.
// It responds with the workbook itself rather than the JSON envelope.
func (h *Handlers) PurchaseOrderReport(c *gin.Context) {
	var q ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	report, err := h.services.Reports.PurchaseOrderReport(c.Request.Context(), q.toFilter())
	if err != nil {
		h.respondError(c, "report", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.FileName+`"`)
	c.Data(http.StatusOK, xlsxContentType, report.Content)
}
