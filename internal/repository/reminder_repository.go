package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// ReminderRepository is the append-only payment reminder log.
type ReminderRepository struct {
	db sqlx.ExtContext
}

// NewReminderRepository constructs the repository.
func NewReminderRepository(db sqlx.ExtContext) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Create appends a reminder.
func (r *ReminderRepository) Create(ctx context.Context, reminder *models.PaymentReminder) error {
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO payment_reminders (user_id, assessment_id, payment_term_id, type, message, outstanding_balance, trigger_reason, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := sqlx.GetContext(ctx, r.db, &reminder.ID, query,
		reminder.UserID,
		reminder.AssessmentID,
		reminder.PaymentTermID,
		reminder.Type,
		reminder.Message,
		reminder.OutstandingBalance,
		reminder.TriggerReason,
		reminder.Metadata,
		reminder.CreatedAt,
	); err != nil {
		return fmt.Errorf("create payment reminder: %w", err)
	}
	return nil
}

// List returns reminders newest first.
func (r *ReminderRepository) List(ctx context.Context, filter models.ReminderFilter) ([]models.PaymentReminder, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, user_id, assessment_id, payment_term_id, type, message, outstanding_balance, trigger_reason, metadata, created_at
	FROM payment_reminders`)

	conditions := make([]string, 0, 2)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var reminders []models.PaymentReminder
	if err := sqlx.SelectContext(ctx, r.db, &reminders, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list payment reminders: %w", err)
	}
	return reminders, nil
}

// ExistsForTermSince reports whether a reminder of the given type was already
// written for the term at or after since.
func (r *ReminderRepository) ExistsForTermSince(ctx context.Context, termID int64, reminderType models.ReminderType, since time.Time) (bool, error) {
	const query = `SELECT 1 FROM payment_reminders WHERE payment_term_id = $1 AND type = $2 AND created_at >= $3 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, query, termID, reminderType, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check payment reminder: %w", err)
	}
	return true, nil
}
