package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

func TestReminderRepositoryListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	rows := sqlmock.NewRows([]string{"id", "user_id", "assessment_id", "payment_term_id", "type", "message", "outstanding_balance", "trigger_reason", "metadata", "created_at"}).
		AddRow(1, 77, 10, 2, "overdue", "Your Midterm payment is overdue.", "3000.00", "due_sweep", []byte(`{"term_order":2}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_reminders WHERE user_id = $1 AND type IN ($2,$3) ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 0")).
		WithArgs(int64(77), "overdue", "payment_due").
		WillReturnRows(rows)

	reminders, err := repo.List(context.Background(), models.ReminderFilter{
		UserID: 77,
		Types:  []models.ReminderType{models.ReminderOverdue, models.ReminderPaymentDue},
	})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	require.Equal(t, models.ReminderOverdue, reminders[0].Type)
	require.NotNil(t, reminders[0].Metadata.TermOrder)
	require.Equal(t, 2, *reminders[0].Metadata.TermOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryExistsForTermSince(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReminderRepository(db)
	since := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM payment_reminders")).
		WithArgs(int64(2), "overdue", since).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM payment_reminders")).
		WithArgs(int64(3), "overdue", since).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsForTermSince(context.Background(), 2, models.ReminderOverdue, since)
	require.NoError(t, err)
	require.False(t, exists)

	exists, err = repo.ExistsForTermSince(context.Background(), 3, models.ReminderOverdue, since)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateDefaultsKind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO payments")).
		WithArgs(int64(10), int64(77), "payment", sqlmock.AnyArg(), "PAY-1", "cash", sqlmock.AnyArg(), "paid", sqlmock.AnyArg(), int64(5), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(500))

	payment := &models.Payment{
		AssessmentID:  10,
		UserID:        77,
		Reference:     "PAY-1",
		PaymentMethod: models.PaymentMethodCash,
		PaidAt:        time.Now(),
		Status:        models.PaymentStatusPaid,
		RecordedBy:    5,
	}
	require.NoError(t, repo.Create(context.Background(), payment))
	require.Equal(t, int64(500), payment.ID)
	require.Equal(t, models.TransactionKindPayment, payment.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	now := time.Now()
	breakdown := []byte(`[{"term_id":1,"term_name":"Prelim","amount_applied":"5000","new_balance":"0","status":"paid","kind":"term"}]`)
	rows := sqlmock.NewRows([]string{"id", "assessment_id", "user_id", "kind", "amount", "reference", "payment_method", "paid_at", "status", "breakdown", "recorded_by", "created_at"}).
		AddRow(500, 10, 77, "payment", "5000.00", "PAY-1", "cash", now, "pending_approval", breakdown, 5, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1")).
		WithArgs(int64(500)).
		WillReturnRows(rows)

	payment, err := repo.FindByID(context.Background(), 500)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPendingApproval, payment.Status)
	require.Equal(t, "5000", payment.Amount.String())
	require.Len(t, payment.Breakdown, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "role", "active", "created_at", "updated_at"}).
		AddRow(77, "ana@example.edu", "Ana Cruz", "student", true, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(77)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs(int64(78)).
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), 77)
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, user.Role)
	require.Equal(t, "ana@example.edu", user.Email)

	_, err = repo.FindByID(context.Background(), 78)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
