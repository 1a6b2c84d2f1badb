package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role groups users by what they may do in procurement
type Role string

const (
	RoleAdmin              Role = "admin"
	RoleProcurementManager Role = "procurement_manager"
	RoleDirector           Role = "director"
	RoleFinanceApprover    Role = "finance_approver"
	RoleRequester          Role = "requester"
	RoleViewer             Role = "viewer"
)

// IsValid checks if the role is one of the defined constants
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleProcurementManager, RoleDirector, RoleFinanceApprover, RoleRequester, RoleViewer:
		return true
	default:
		return false
	}
}

// User is an account that owns, submits or approves orders.
// ApprovalLimit overrides the role limit when set.
type User struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	FullName      string           `json:"full_name"`
	PasswordHash  string           `json:"-"`
	Role          Role             `json:"role"`
	IsAdmin       bool             `json:"is_admin"`
	IsActive      bool             `json:"is_active"`
	ApprovalLimit *decimal.Decimal `json:"approval_limit,omitempty"`
	LastLoginAt   *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Actor identifies who performs an operation
type Actor struct {
	UserID  string
	Role    Role
	IsAdmin bool
}

// Actor returns the acting identity of u
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Role: u.Role, IsAdmin: u.IsAdmin || u.Role == RoleAdmin}
}
