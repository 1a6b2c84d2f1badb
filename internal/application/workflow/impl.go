package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	domainwf "github.com/garyjia/procurement/internal/domain/workflow"
	"github.com/google/uuid"
)

// engineImpl is the concrete implementation of ApprovalEngine
type engineImpl struct {
	authority port.AuthorityResolver
	now       func() time.Time
}

// EngineOption configures the approval engine
type EngineOption func(*engineImpl)

// WithClock overrides the time source used for approvals and audit records
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new approval engine
func NewEngine(authority port.AuthorityResolver, opts ...EngineOption) ApprovalEngine {
	e := &engineImpl{
		authority: authority,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit moves a DRAFT order to PENDING_APPROVAL
func (e *engineImpl) Submit(ctx context.Context, order *entity.PurchaseOrder, actor entity.Actor) (*entity.StatusTransition, error) {
	guards := domainwf.Guards{
		domainwf.TriggerSubmit: func(ctx context.Context) error {
			if err := requireOwnerOrAdmin(order, actor, "submit"); err != nil {
				return err
			}
			if len(order.Lines) == 0 {
				return fmt.Errorf("%w: order %s has no lines", entity.ErrValidation, order.ID)
			}
			if !order.Total.IsPositive() {
				return fmt.Errorf("%w: order %s total must be positive, got %s", entity.ErrValidation, order.ID, order.Total)
			}
			return nil
		},
	}

	return e.transition(ctx, order, guards, domainwf.TriggerSubmit, actor.UserID, "")
}

// RecordApproval appends a decision to a pending order.
// A repeated decision by the same approver is rejected before the status is checked,
// so the first decision always stands.
func (e *engineImpl) RecordApproval(ctx context.Context, order *entity.PurchaseOrder, approver entity.Actor, decision, comment string) (*entity.Approval, *entity.StatusTransition, error) {
	decision = strings.ToUpper(strings.TrimSpace(decision))
	if !entity.IsValidDecision(decision) {
		return nil, nil, fmt.Errorf("%w: decision must be %s or %s, got %q", entity.ErrValidation, entity.DecisionApprove, entity.DecisionReject, decision)
	}
	if approver.UserID == "" {
		return nil, nil, fmt.Errorf("%w: approver is required", entity.ErrValidation)
	}

	if prior, ok := order.DecisionBy(approver.UserID); ok {
		return nil, nil, fmt.Errorf("%w: approver %s already recorded %s on order %s", entity.ErrDuplicateAction, approver.UserID, prior.Decision, order.ID)
	}

	guards := domainwf.Guards{
		domainwf.TriggerApprove: func(ctx context.Context) error {
			limit, err := e.authority.ApprovalLimit(ctx, approver.UserID)
			if err != nil {
				return fmt.Errorf("resolve approval limit: %w", err)
			}
			if !limit.Covers(order.Total) {
				return fmt.Errorf("%w: approval limit %s is below order total %s", entity.ErrAuthority, limit, order.Total.StringFixed(2))
			}
			return nil
		},
		domainwf.TriggerReject: func(ctx context.Context) error {
			limit, err := e.authority.ApprovalLimit(ctx, approver.UserID)
			if err != nil {
				return fmt.Errorf("resolve approval limit: %w", err)
			}
			if !limit.HasAuthority() {
				return fmt.Errorf("%w: user %s has no approval authority", entity.ErrAuthority, approver.UserID)
			}
			return nil
		},
	}

	trigger := domainwf.TriggerApprove
	if decision == entity.DecisionReject {
		trigger = domainwf.TriggerReject
	}

	transition, err := e.transition(ctx, order, guards, trigger, approver.UserID, comment)
	if err != nil {
		return nil, nil, err
	}

	approval := entity.Approval{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		ApproverID: approver.UserID,
		Decision:   decision,
		Comment:    comment,
		Timestamp:  transition.Timestamp,
	}
	order.Approvals = append(order.Approvals, approval)

	return &approval, transition, nil
}

// Cancel moves a DRAFT or PENDING_APPROVAL order to CANCELLED
func (e *engineImpl) Cancel(ctx context.Context, order *entity.PurchaseOrder, actor entity.Actor) (*entity.StatusTransition, error) {
	guards := domainwf.Guards{
		domainwf.TriggerCancel: func(ctx context.Context) error {
			return requireOwnerOrAdmin(order, actor, "cancel")
		},
	}

	return e.transition(ctx, order, guards, domainwf.TriggerCancel, actor.UserID, "")
}

// Fulfill moves an APPROVED order to FULFILLED
func (e *engineImpl) Fulfill(ctx context.Context, order *entity.PurchaseOrder, actorID string) (*entity.StatusTransition, error) {
	return e.transition(ctx, order, nil, domainwf.TriggerFulfill, actorID, "")
}

// PermittedActions lists the triggers configured for the order's current status
func (e *engineImpl) PermittedActions(order *entity.PurchaseOrder) []domainwf.Trigger {
	return domainwf.PermittedTriggers(order.Status)
}

// transition fires trigger from the order's current status and applies the
// resulting status to the aggregate.
func (e *engineImpl) transition(ctx context.Context, order *entity.PurchaseOrder, guards domainwf.Guards, trigger domainwf.Trigger, actorID, comment string) (*entity.StatusTransition, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: order is required", entity.ErrValidation)
	}

	previous := order.Status
	machine, err := domainwf.NewMachine(previous, guards)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %w", entity.ErrInvalidState, order.ID, err)
	}

	if err := machine.Fire(ctx, trigger); err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: cannot %s order %s in status %s", entity.ErrInvalidState, strings.ToLower(trigger.String()), order.ID, previous)
		}
		return nil, err
	}

	now := e.now()
	order.Status = machine.State()
	order.UpdatedAt = now

	return &entity.StatusTransition{
		OrderID:        order.ID,
		ActorID:        actorID,
		Action:         trigger.String(),
		PreviousStatus: previous,
		NewStatus:      order.Status,
		Comment:        comment,
		Timestamp:      now,
	}, nil
}

func requireOwnerOrAdmin(order *entity.PurchaseOrder, actor entity.Actor, action string) error {
	if actor.IsAdmin || order.IsOwnedBy(actor.UserID) {
		return nil
	}
	return fmt.Errorf("%w: only the owner or an administrator may %s order %s", entity.ErrAuthority, action, order.ID)
}
