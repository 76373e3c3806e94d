package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

const paymentColumns = `id, assessment_id, user_id, kind, amount, reference, payment_method, paid_at, status, breakdown, recorded_by, created_at`

// PaymentRepository persists immutable payment transactions. There is no
// update path.
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts the payment and fills its identifier.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Kind == "" {
		payment.Kind = models.TransactionKindPayment
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payments (assessment_id, user_id, kind, amount, reference, payment_method, paid_at, status, breakdown, recorded_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := sqlx.GetContext(ctx, r.db, &payment.ID, query,
		payment.AssessmentID,
		payment.UserID,
		payment.Kind,
		payment.Amount,
		payment.Reference,
		payment.PaymentMethod,
		payment.PaidAt,
		payment.Status,
		payment.Breakdown,
		payment.RecordedBy,
		payment.CreatedAt,
	); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// FindByID loads a payment.
func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	var payment models.Payment
	if err := sqlx.GetContext(ctx, r.db, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}
