package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionPaymentRecord   = "PAYMENT_RECORD"
	AuditActionTermsCreate     = "PAYMENT_TERMS_CREATE"
	AuditActionWorkflowCreate  = "WORKFLOW_CREATE"
	AuditActionWorkflowStart   = "WORKFLOW_START"
	AuditActionWorkflowAdvance = "WORKFLOW_ADVANCE"
	AuditActionApprovalApprove = "APPROVAL_APPROVE"
	AuditActionApprovalReject  = "APPROVAL_REJECT"
	AuditActionHTTPMutation    = "HTTP_MUTATION"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *int64    `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
