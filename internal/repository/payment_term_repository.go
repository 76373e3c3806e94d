package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// ErrStaleRecord is returned when an optimistic version guard matches no row.
var ErrStaleRecord = errors.New("stale record version")

const paymentTermColumns = `id, assessment_id, term_name, term_order, amount, balance, percentage, due_date, status, version, created_at, updated_at`

// PaymentTermRepository persists the installment ledger.
type PaymentTermRepository struct {
	db sqlx.ExtContext
}

// NewPaymentTermRepository constructs the repository.
func NewPaymentTermRepository(db sqlx.ExtContext) *PaymentTermRepository {
	return &PaymentTermRepository{db: db}
}

// ListByAssessment returns the assessment's terms ordered by term_order.
func (r *PaymentTermRepository) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error) {
	query := `SELECT ` + paymentTermColumns + ` FROM payment_terms WHERE assessment_id = $1 ORDER BY term_order ASC`
	var terms []models.PaymentTerm
	if err := sqlx.SelectContext(ctx, r.db, &terms, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list payment terms: %w", err)
	}
	return terms, nil
}

// ListByAssessmentForUpdate locks the assessment's term rows until the
// surrounding transaction ends, serializing concurrent allocations.
func (r *PaymentTermRepository) ListByAssessmentForUpdate(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error) {
	query := `SELECT ` + paymentTermColumns + ` FROM payment_terms WHERE assessment_id = $1 ORDER BY term_order ASC FOR UPDATE`
	var terms []models.PaymentTerm
	if err := sqlx.SelectContext(ctx, r.db, &terms, query, assessmentID); err != nil {
		return nil, fmt.Errorf("lock payment terms: %w", err)
	}
	return terms, nil
}

// Create inserts a term and fills its identifier.
func (r *PaymentTermRepository) Create(ctx context.Context, term *models.PaymentTerm) error {
	if term.CreatedAt.IsZero() {
		term.CreatedAt = time.Now().UTC()
	}
	term.UpdatedAt = term.CreatedAt
	if term.Version == 0 {
		term.Version = 1
	}
	const query = `INSERT INTO payment_terms (assessment_id, term_name, term_order, amount, balance, percentage, due_date, status, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := sqlx.GetContext(ctx, r.db, &term.ID, query,
		term.AssessmentID,
		term.TermName,
		term.TermOrder,
		term.Amount,
		term.Balance,
		term.Percentage,
		term.DueDate,
		term.Status,
		term.Version,
		term.CreatedAt,
		term.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create payment term: %w", err)
	}
	return nil
}

// UpdateBalance writes the balance and status guarded by the version read
// earlier. A concurrent writer makes the guard miss and ErrStaleRecord is
// returned; on success the term's version is bumped in place.
func (r *PaymentTermRepository) UpdateBalance(ctx context.Context, term *models.PaymentTerm, updatedAt time.Time) error {
	const query = `UPDATE payment_terms SET balance = $1, status = $2, version = version + 1, updated_at = $3
	WHERE id = $4 AND version = $5`
	result, err := r.db.ExecContext(ctx, query, term.Balance, term.Status, updatedAt, term.ID, term.Version)
	if err != nil {
		return fmt.Errorf("update payment term balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check payment term update rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleRecord
	}
	term.Version++
	term.UpdatedAt = updatedAt
	return nil
}

// DueTerm is an outstanding term together with its student.
type DueTerm struct {
	models.PaymentTerm
	UserID int64 `db:"user_id"`
}

// ListOutstandingDueBefore returns unpaid terms due on or before cutoff.
func (r *PaymentTermRepository) ListOutstandingDueBefore(ctx context.Context, cutoff time.Time) ([]DueTerm, error) {
	const query = `SELECT t.id, t.assessment_id, t.term_name, t.term_order, t.amount, t.balance, t.percentage, t.due_date,
       t.status, t.version, t.created_at, t.updated_at, a.user_id
	FROM payment_terms t
	JOIN assessments a ON a.id = t.assessment_id
	WHERE t.balance > 0 AND t.due_date <= $1
	ORDER BY t.due_date ASC, t.term_order ASC`
	var terms []DueTerm
	if err := sqlx.SelectContext(ctx, r.db, &terms, query, cutoff); err != nil {
		return nil, fmt.Errorf("list outstanding due terms: %w", err)
	}
	return terms, nil
}
