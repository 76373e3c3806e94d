package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// UserRole is the closed set of roles known to billing. Legacy spellings are
// resolved once by ParseUserRole at the persistence or token boundary.
type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleAccounting UserRole = "accounting"
	RoleRegistrar  UserRole = "registrar"
	RoleStudent    UserRole = "student"
)

var roleAliases = map[string]UserRole{
	"super_admin": RoleSuperAdmin,
	"superadmin":  RoleSuperAdmin,
	"super-admin": RoleSuperAdmin,
	"admin":       RoleAdmin,
	"accounting":  RoleAccounting,
	"accountant":  RoleAccounting,
	"registrar":   RoleRegistrar,
	"student":     RoleStudent,
}

// ParseUserRole maps any accepted spelling to its canonical role.
func ParseUserRole(raw string) (UserRole, error) {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown user role %q", raw)
	}
	return role, nil
}

// Scan implements sql.Scanner.
func (r *UserRole) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan user role: unsupported type %T", src)
	}
	role, err := ParseUserRole(raw)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Value implements driver.Valuer.
func (r UserRole) Value() (driver.Value, error) {
	if _, err := ParseUserRole(string(r)); err != nil {
		return nil, err
	}
	return string(r), nil
}

// UnmarshalText lets token claims carry legacy spellings.
func (r *UserRole) UnmarshalText(text []byte) error {
	role, err := ParseUserRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Capability is a boolean permission consumed from the role matrix.
type Capability string

const (
	CapabilityViewLedger      Capability = "view_ledger"
	CapabilityManageTerms     Capability = "manage_terms"
	CapabilityRecordPayments  Capability = "record_payments"
	CapabilityManageWorkflows Capability = "manage_workflows"
	CapabilityApprove         Capability = "approve"
)

// RoleCapabilities is the permission matrix per role.
var RoleCapabilities = map[UserRole][]Capability{
	RoleSuperAdmin: {CapabilityViewLedger, CapabilityManageTerms, CapabilityRecordPayments, CapabilityManageWorkflows, CapabilityApprove},
	RoleAdmin:      {CapabilityViewLedger, CapabilityManageTerms, CapabilityRecordPayments, CapabilityManageWorkflows, CapabilityApprove},
	RoleAccounting: {CapabilityViewLedger, CapabilityManageTerms, CapabilityRecordPayments, CapabilityApprove},
	RoleRegistrar:  {CapabilityViewLedger, CapabilityApprove},
	RoleStudent:    {},
}

// Can reports whether the role holds the capability.
func (r UserRole) Can(capability Capability) bool {
	for _, c := range RoleCapabilities[r] {
		if c == capability {
			return true
		}
	}
	return false
}

// User is the subset of the users table billing needs for notifications.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      UserRole  `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
