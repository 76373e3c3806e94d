package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// RecordPaymentRequest is the payload for posting a payment against an assessment.
type RecordPaymentRequest struct {
	AssessmentID  int64                `json:"-" validate:"required,gt=0"`
	Amount        decimal.Decimal      `json:"amount"`
	TargetTermID  *int64               `json:"target_term_id,omitempty" validate:"omitempty,gt=0"`
	Reference     string               `json:"reference" validate:"omitempty,max=64"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash bank_transfer check gcash card"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
}

// TermInput describes one installment when terms are assigned to an assessment.
type TermInput struct {
	TermName   string          `json:"term_name" validate:"required,max=100"`
	TermOrder  int             `json:"term_order" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	DueDate    time.Time       `json:"due_date" validate:"required"`
}

// CreateTermsRequest assigns installment terms to an assessment.
type CreateTermsRequest struct {
	Terms []TermInput `json:"terms" validate:"required,min=1,max=12,dive"`
}

// ReminderQuery mirrors supported reminder listing filters.
type ReminderQuery struct {
	Types  []models.ReminderType
	Limit  int
	Offset int
}
