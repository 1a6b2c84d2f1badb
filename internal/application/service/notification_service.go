package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/procurement/internal/application/dispatcher"
	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/garyjia/procurement/internal/domain/event"
	"github.com/garyjia/procurement/internal/domain/workflow"
)

// Notification is a message addressed to a user
type Notification struct {
	UserID  string
	Email   string
	Subject string
	Body    string
}

// NotificationService turns order events into owner notifications
type NotificationService interface {
	NotifyStatusChange(ctx context.Context, evt *event.Event) (*Notification, error)
}

type notificationServiceImpl struct {
	users  port.UserRepository
	logger Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(users port.UserRepository, logger Logger) NotificationService {
	return &notificationServiceImpl{users: users, logger: logger}
}

// NotifyStatusChange builds the notification for the owner of the order in evt.
// Delivery is a log entry; there is no outbound mail transport.
func (s *notificationServiceImpl) NotifyStatusChange(ctx context.Context, evt *event.Event) (*Notification, error) {
	ownerID := evt.GetPayloadString(event.KeyOwnerID)
	if ownerID == "" {
		return nil, fmt.Errorf("event %s has no owner", evt.ID)
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to resolve order owner", "error", err, "order_id", evt.OrderID, "owner_id", ownerID)
		return nil, fmt.Errorf("get owner: %w", err)
	}

	n := &Notification{
		UserID:  owner.ID,
		Email:   owner.Email,
		Subject: buildSubject(evt),
		Body:    buildBody(evt),
	}

	s.logger.Info("Notification sent",
		"order_id", evt.OrderID,
		"user_id", n.UserID,
		"email", n.Email,
		"subject", n.Subject,
		"correlation_id", evt.CorrelationID)
	return n, nil
}

func buildSubject(evt *event.Event) string {
	number := evt.GetPayloadString(event.KeyOrderNumber)
	status := workflow.State(evt.GetPayloadString(event.KeyNewStatus))
	switch status {
	case workflow.StatePendingApproval:
		return fmt.Sprintf("Purchase order %s submitted for approval", number)
	case workflow.StateApproved:
		return fmt.Sprintf("Purchase order %s approved", number)
	case workflow.StateRejected:
		return fmt.Sprintf("Purchase order %s rejected", number)
	case workflow.StateCancelled:
		return fmt.Sprintf("Purchase order %s cancelled", number)
	case workflow.StateFulfilled:
		return fmt.Sprintf("Purchase order %s fulfilled", number)
	default:
		return fmt.Sprintf("Purchase order %s updated", number)
	}
}

func buildBody(evt *event.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Order %s moved from %s to %s.",
		evt.GetPayloadString(event.KeyOrderNumber),
		evt.GetPayloadString(event.KeyPreviousStatus),
		evt.GetPayloadString(event.KeyNewStatus))
	if evt.ActorID != "" && evt.ActorID != SystemActorID {
		fmt.Fprintf(&sb, "\nBy: %s", evt.ActorID)
	}
	if c := evt.GetPayloadString(event.KeyComment); c != "" {
		fmt.Fprintf(&sb, "\nComment: %s", c)
	}
	return sb.String()
}

// Handler names used for subscriptions
const (
	HandlerOrderNotifier     = "order-notifier"
	HandlerShipmentFulfiller = "shipment-fulfiller"
)

// RegisterEventHandlers subscribes the notification and fulfilment handlers
func RegisterEventHandlers(d dispatcher.Dispatcher, notifications NotificationService, orders PurchaseOrderService, logger Logger) {
	d.Subscribe(event.TypeStatusChanged, HandlerOrderNotifier, func(ctx context.Context, evt *event.Event) error {
		_, err := notifications.NotifyStatusChange(ctx, evt)
		return err
	})

	d.Subscribe(event.TypeShipmentDelivered, HandlerShipmentFulfiller, func(ctx context.Context, evt *event.Event) error {
		err := orders.MarkFulfilled(ctx, evt.OrderID)
		if errors.Is(err, entity.ErrInvalidState) {
			// other shipments still outstanding, or the order already moved on
			logger.Info("Order not fulfilled on delivery", "order_id", evt.OrderID, "shipment_id", evt.GetPayloadString(event.KeyShipmentID), "reason", err.Error())
			return nil
		}
		return err
	})
}
