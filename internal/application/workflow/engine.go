package workflow

import (
	"context"

	"github.com/garyjia/procurement/internal/domain/entity"
	domainwf "github.com/garyjia/procurement/internal/domain/workflow"
)

// ApprovalEngine is the sole authority for purchase order status transitions.
// It mutates the in-memory aggregate and returns the audit record for the
// transition; persisting both is the caller's job.
type ApprovalEngine interface {
	// Submit moves a DRAFT order with at least one line and a positive total to PENDING_APPROVAL
	Submit(ctx context.Context, order *entity.PurchaseOrder, actor entity.Actor) (*entity.StatusTransition, error)

	// RecordApproval appends an APPROVE or REJECT decision to a pending order and transitions it
	RecordApproval(ctx context.Context, order *entity.PurchaseOrder, approver entity.Actor, decision, comment string) (*entity.Approval, *entity.StatusTransition, error)

	// Cancel moves a DRAFT or PENDING_APPROVAL order to CANCELLED
	Cancel(ctx context.Context, order *entity.PurchaseOrder, actor entity.Actor) (*entity.StatusTransition, error)

	// Fulfill moves an APPROVED order to FULFILLED once its shipments are delivered
	Fulfill(ctx context.Context, order *entity.PurchaseOrder, actorID string) (*entity.StatusTransition, error)

	// PermittedActions lists the triggers configured for the order's current status
	PermittedActions(order *entity.PurchaseOrder) []domainwf.Trigger
}
