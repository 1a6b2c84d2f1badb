package entity

// Approval decisions
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

// Audit trail actions
const (
	ActionCreate  = "CREATE"
	ActionSubmit  = "SUBMIT"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionCancel  = "CANCEL"
	ActionFulfill = "FULFILL"
)

// Shipment status constants
const (
	ShipmentStatusPending   = "PENDING"
	ShipmentStatusInTransit = "IN_TRANSIT"
	ShipmentStatusDelivered = "DELIVERED"
)

// DefaultCurrency is used when an order is created without a currency code
const DefaultCurrency = "USD"
