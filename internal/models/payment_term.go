package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Assessment is the total fee obligation of a student for one school term.
type Assessment struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"user_id"`
	SchoolYear  string          `db:"school_year" json:"school_year"`
	Semester    string          `db:"semester" json:"semester"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// PaymentTermStatus is derived from a term's balance.
type PaymentTermStatus string

const (
	PaymentTermPending PaymentTermStatus = "pending"
	PaymentTermPartial PaymentTermStatus = "partial"
	PaymentTermPaid    PaymentTermStatus = "paid"
)

// PaymentTerm is one installment of an assessment.
type PaymentTerm struct {
	ID           int64             `db:"id" json:"id"`
	AssessmentID int64             `db:"assessment_id" json:"assessment_id"`
	TermName     string            `db:"term_name" json:"term_name"`
	TermOrder    int               `db:"term_order" json:"term_order"`
	Amount       decimal.Decimal   `db:"amount" json:"amount"`
	Balance      decimal.Decimal   `db:"balance" json:"balance"`
	Percentage   decimal.Decimal   `db:"percentage" json:"percentage"`
	DueDate      time.Time         `db:"due_date" json:"due_date"`
	Status       PaymentTermStatus `db:"status" json:"status"`
	Version      int64             `db:"version" json:"version"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// DeriveTermStatus maps a balance to its status: zero is paid, the full amount
// is pending, anything in between is partial.
func DeriveTermStatus(amount, balance decimal.Decimal) PaymentTermStatus {
	switch {
	case balance.Sign() <= 0:
		return PaymentTermPaid
	case balance.Equal(amount):
		return PaymentTermPending
	default:
		return PaymentTermPartial
	}
}

// HasBalance reports whether anything is still owed on the term.
func (t *PaymentTerm) HasBalance() bool {
	return t.Balance.Sign() > 0
}

// Apply reduces the balance by at most amount and returns what was applied.
func (t *PaymentTerm) Apply(amount decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(amount, t.Balance)
	if applied.Sign() <= 0 {
		return decimal.Zero
	}
	t.Balance = t.Balance.Sub(applied)
	t.Status = DeriveTermStatus(t.Amount, t.Balance)
	return applied
}

// Validate checks 0 <= balance <= amount and the derived status.
func (t *PaymentTerm) Validate() error {
	if t.Amount.Sign() <= 0 {
		return fmt.Errorf("term %d: amount must be positive", t.TermOrder)
	}
	if t.Balance.IsNegative() || t.Balance.GreaterThan(t.Amount) {
		return fmt.Errorf("term %d: balance %s outside [0, %s]", t.TermOrder, t.Balance.StringFixed(2), t.Amount.StringFixed(2))
	}
	if want := DeriveTermStatus(t.Amount, t.Balance); t.Status != want {
		return fmt.Errorf("term %d: status %s does not match balance (want %s)", t.TermOrder, t.Status, want)
	}
	return nil
}

// OutstandingSummary aggregates an assessment's term balances.
type OutstandingSummary struct {
	AssessmentID     int64           `json:"assessment_id"`
	Total            decimal.Decimal `json:"total"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	Paid             decimal.Decimal `json:"paid"`
	TermsPaid        int             `json:"terms_paid"`
	TermsOutstanding int             `json:"terms_outstanding"`
}

// Summarize totals the provided terms.
func Summarize(assessmentID int64, terms []PaymentTerm) OutstandingSummary {
	summary := OutstandingSummary{AssessmentID: assessmentID, Total: decimal.Zero, Outstanding: decimal.Zero, Paid: decimal.Zero}
	for _, term := range terms {
		summary.Total = summary.Total.Add(term.Amount)
		if term.HasBalance() {
			summary.Outstanding = summary.Outstanding.Add(term.Balance)
			summary.TermsOutstanding++
		} else {
			summary.TermsPaid++
		}
	}
	summary.Paid = summary.Total.Sub(summary.Outstanding)
	return summary
}
