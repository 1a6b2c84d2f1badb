package entity

import "time"

// Approval is an append-only decision recorded against a pending order
type Approval struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	ApproverID string    `json:"approver_id"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsValidDecision reports whether d is APPROVE or REJECT
func IsValidDecision(d string) bool {
	return d == DecisionApprove || d == DecisionReject
}
