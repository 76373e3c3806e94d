package models

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// ReminderType classifies a reminder.
type ReminderType string

const (
	ReminderOverdue         ReminderType = "overdue"
	ReminderApproachingDue  ReminderType = "approaching_due"
	ReminderPaymentDue      ReminderType = "payment_due"
	ReminderPartialPayment  ReminderType = "partial_payment"
	ReminderPaymentReceived ReminderType = "payment_received"
)

// Trigger reasons recorded on reminders.
const (
	TriggerDueAssigned     = "due_assigned"
	TriggerPaymentRecorded = "payment_recorded"
	TriggerDueSweep        = "due_sweep"
)

// ReminderMetadata snapshots the triggering term or transaction.
type ReminderMetadata struct {
	TermOrder     *int             `json:"term_order,omitempty"`
	DueDate       *string          `json:"due_date,omitempty"`
	Percentage    *decimal.Decimal `json:"percentage,omitempty"`
	DaysUntilDue  *int             `json:"days_until_due,omitempty"`
	TransactionID *int64           `json:"transaction_id,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

// Scan implements sql.Scanner.
func (m *ReminderMetadata) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// Value implements driver.Valuer.
func (m ReminderMetadata) Value() (driver.Value, error) {
	return valueJSON(m)
}

// PaymentReminder is an append-only notification record.
type PaymentReminder struct {
	ID                 int64            `db:"id" json:"id"`
	UserID             int64            `db:"user_id" json:"user_id"`
	AssessmentID       int64            `db:"assessment_id" json:"assessment_id"`
	PaymentTermID      *int64           `db:"payment_term_id" json:"payment_term_id,omitempty"`
	Type               ReminderType     `db:"type" json:"type"`
	Message            string           `db:"message" json:"message"`
	OutstandingBalance decimal.Decimal  `db:"outstanding_balance" json:"outstanding_balance"`
	TriggerReason      string           `db:"trigger_reason" json:"trigger_reason"`
	Metadata           ReminderMetadata `db:"metadata" json:"metadata"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
}

// ReminderFilter constrains reminder listing.
type ReminderFilter struct {
	UserID int64
	Types  []ReminderType
	Limit  int
	Offset int
}
