package entity

import "github.com/shopspring/decimal"

// ApprovalLimit is the maximum order total a user may approve
type ApprovalLimit struct {
	Amount    decimal.Decimal
	Unlimited bool
}

// UnlimitedApproval returns a limit that covers any total
func UnlimitedApproval() ApprovalLimit {
	return ApprovalLimit{Unlimited: true}
}

// NoApproval returns a limit that grants no approval authority
func NoApproval() ApprovalLimit {
	return ApprovalLimit{Amount: decimal.Zero}
}

// HasAuthority reports whether the holder may decide on orders at all
func (l ApprovalLimit) HasAuthority() bool {
	return l.Unlimited || l.Amount.IsPositive()
}

// Covers reports whether total is within the limit
func (l ApprovalLimit) Covers(total decimal.Decimal) bool {
	if l.Unlimited {
		return true
	}
	return l.HasAuthority() && total.LessThanOrEqual(l.Amount)
}

// String renders the limit for logs and error messages
func (l ApprovalLimit) String() string {
	if l.Unlimited {
		return "unlimited"
	}
	return l.Amount.StringFixed(2)
}
