package entity

import (
	"time"

	"github.com/garyjia/procurement/internal/domain/workflow"
)

// StatusTransition is one entry of an order's append-only audit trail
type StatusTransition struct {
	ID             int64          `json:"id"`
	OrderID        string         `json:"order_id"`
	ActorID        string         `json:"actor_id"`
	Action         string         `json:"action"`
	PreviousStatus workflow.State `json:"previous_status"`
	NewStatus      workflow.State `json:"new_status"`
	Comment        string         `json:"comment,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
