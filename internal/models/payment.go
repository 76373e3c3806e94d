package models

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is fixed when the payment row is written.
type PaymentStatus string

const (
	// PaymentStatusPaid marks payments that need no further review.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusPendingApproval marks payments routed through an approval
	// workflow. The row is never updated; the linked workflow instance holds
	// the review outcome.
	PaymentStatusPendingApproval PaymentStatus = "pending_approval"
	// PaymentStatusApproved and PaymentStatusRejected are never stored. They
	// are derived from the approval instance of a routed payment.
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// PaymentMethod enumerates accepted channels.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodCard         PaymentMethod = "card"
)

// TransactionKindPayment is the only transaction kind written by billing.
const TransactionKindPayment = "payment"

// AllocationEntryKind distinguishes term applications from leftovers.
type AllocationEntryKind string

const (
	AllocationKindTerm        AllocationEntryKind = "term"
	AllocationKindOverpayment AllocationEntryKind = "overpayment"
)

// AllocationEntry is one line of a payment's allocation breakdown.
type AllocationEntry struct {
	Kind          AllocationEntryKind `json:"kind"`
	TermID        int64               `json:"term_id,omitempty"`
	TermName      string              `json:"term_name,omitempty"`
	AmountApplied decimal.Decimal     `json:"amount_applied"`
	NewBalance    decimal.Decimal     `json:"new_balance"`
	Status        PaymentTermStatus   `json:"status,omitempty"`
}

// AllocationBreakdown is stored as JSONB on the payment row.
type AllocationBreakdown []AllocationEntry

// Scan implements sql.Scanner.
func (b *AllocationBreakdown) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// Value implements driver.Valuer.
func (b AllocationBreakdown) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return valueJSON(b)
}

// Payment is an immutable record of money received.
type Payment struct {
	ID            int64               `db:"id" json:"id"`
	AssessmentID  int64               `db:"assessment_id" json:"assessment_id"`
	UserID        int64               `db:"user_id" json:"user_id"`
	Kind          string              `db:"kind" json:"kind"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	Reference     string              `db:"reference" json:"reference"`
	PaymentMethod PaymentMethod       `db:"payment_method" json:"payment_method"`
	PaidAt        time.Time           `db:"paid_at" json:"paid_at"`
	Status        PaymentStatus       `db:"status" json:"status"`
	Breakdown     AllocationBreakdown `db:"breakdown" json:"breakdown"`
	RecordedBy    int64               `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// EffectiveStatus resolves the status of a payment given the workflow
// instances attached to it, newest first. Payments that were not routed for
// approval keep their stored status.
func (p Payment) EffectiveStatus(instances []WorkflowInstance) PaymentStatus {
	if p.Status != PaymentStatusPendingApproval || len(instances) == 0 {
		return p.Status
	}
	switch instances[0].Status {
	case WorkflowCompleted:
		return PaymentStatusApproved
	case WorkflowRejected:
		return PaymentStatusRejected
	default:
		return PaymentStatusPendingApproval
	}
}
