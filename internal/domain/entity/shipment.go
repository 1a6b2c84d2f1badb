package entity

import "time"

// Shipment tracks delivery of an approved order.
// An APPROVED order is fulfilled once all its shipments are delivered.
type Shipment struct {
	ID             string     `json:"id"`
	Number         string     `json:"shipment_number"`
	OrderID        string     `json:"purchase_order_id"`
	Carrier        string     `json:"carrier,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	Status         string     `json:"status"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsDelivered reports whether the shipment has arrived
func (s *Shipment) IsDelivered() bool {
	return s.Status == ShipmentStatusDelivered
}
