package event

// Type identifies the type of domain event
type Type string

const (
	TypeOrderCreated      Type = "order.created"
	TypeOrderSubmitted    Type = "order.submitted"
	TypeOrderApproved     Type = "order.approved"
	TypeOrderRejected     Type = "order.rejected"
	TypeOrderCancelled    Type = "order.cancelled"
	TypeOrderFulfilled    Type = "order.fulfilled"
	TypeStatusChanged     Type = "order.status_changed"
	TypeShipmentDelivered Type = "shipment.delivered"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeOrderCreated,
		TypeOrderSubmitted,
		TypeOrderApproved,
		TypeOrderRejected,
		TypeOrderCancelled,
		TypeOrderFulfilled,
		TypeStatusChanged,
		TypeShipmentDelivered:
		return true
	default:
		return false
	}
}
