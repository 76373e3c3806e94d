package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/money"
)

const approachingDueWindowDays = 3

// ReminderServiceOptions configures message rendering and the calendar used
// for day arithmetic.
type ReminderServiceOptions struct {
	CurrencySymbol string
	Location       *time.Location
}

// ReminderService appends payment reminders in reaction to ledger events. It
// only reads balances and never mutates terms.
type ReminderService struct {
	uow     UnitOfWork
	metrics *MetricsService
	logger  *zap.Logger
	opts    ReminderServiceOptions
}

// NewReminderService constructs the service.
func NewReminderService(uow UnitOfWork, metrics *MetricsService, logger *zap.Logger, opts ReminderServiceOptions) *ReminderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = money.DefaultSymbol
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &ReminderService{uow: uow, metrics: metrics, logger: logger, opts: opts}
}

// DaysUntil counts calendar days from today to due in loc.
func DaysUntil(today, due time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	t := today.In(loc)
	d := due.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// ClassifyDue maps days until due to a reminder type. Anything more than one
// day late is overdue and up to three days ahead is approaching.
func ClassifyDue(daysUntilDue int) models.ReminderType {
	switch {
	case daysUntilDue < -1:
		return models.ReminderOverdue
	case daysUntilDue >= 0 && daysUntilDue <= approachingDueWindowDays:
		return models.ReminderApproachingDue
	default:
		return models.ReminderPaymentDue
	}
}

// HandleDueAssigned appends the reminder for a newly assigned term.
func (s *ReminderService) HandleDueAssigned(ctx context.Context, evt models.DueAssigned, today time.Time) (*models.PaymentReminder, error) {
	reminder := s.dueReminder(evt.UserID, evt.Term, today, models.TriggerDueAssigned)
	if err := s.append(ctx, s.uow.Repos(), reminder); err != nil {
		return nil, err
	}
	return reminder, nil
}

// HandlePaymentRecorded appends a partial or fully-paid reminder based on the
// student's latest assessment.
func (s *ReminderService) HandlePaymentRecorded(ctx context.Context, evt models.PaymentRecorded, now time.Time) (*models.PaymentReminder, error) {
	repos := s.uow.Repos()
	assessmentID := evt.AssessmentID
	latest, err := repos.Assessments.LatestForUser(ctx, evt.UserID)
	switch {
	case err == nil:
		assessmentID = latest.ID
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Debug("no assessment for user, using payment assessment", zap.Int64("user_id", evt.UserID))
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest assessment")
	}

	terms, err := repos.Terms.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment terms")
	}
	outstanding := decimal.Zero
	for _, term := range terms {
		if term.HasBalance() {
			outstanding = outstanding.Add(term.Balance)
		}
	}

	amount := evt.Amount
	transactionID := evt.TransactionID
	reminder := &models.PaymentReminder{
		UserID:             evt.UserID,
		AssessmentID:       assessmentID,
		OutstandingBalance: outstanding,
		TriggerReason:      models.TriggerPaymentRecorded,
		Metadata: models.ReminderMetadata{
			TransactionID: &transactionID,
			Reference:     evt.Reference,
			Amount:        &amount,
		},
		CreatedAt: now,
	}
	paid := money.Format(evt.Amount, s.opts.CurrencySymbol)
	if outstanding.IsZero() {
		reminder.Type = models.ReminderPaymentReceived
		reminder.Message = fmt.Sprintf("Payment of %s (ref %s) received. Your account is now fully paid.", paid, evt.Reference)
	} else {
		reminder.Type = models.ReminderPartialPayment
		reminder.Message = fmt.Sprintf("Payment of %s (ref %s) received. Remaining outstanding balance: %s.",
			paid, evt.Reference, money.Format(outstanding, s.opts.CurrencySymbol))
	}

	if err := s.append(ctx, repos, reminder); err != nil {
		return nil, err
	}
	return reminder, nil
}

// SweepDue appends overdue and approaching-due reminders for outstanding
// terms. A term gets at most one reminder of a given type per day.
func (s *ReminderService) SweepDue(ctx context.Context, now time.Time) ([]models.PaymentReminder, error) {
	local := now.In(s.opts.Location)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.opts.Location)
	cutoff := startOfDay.AddDate(0, 0, approachingDueWindowDays+1).Add(-time.Nanosecond)

	repos := s.uow.Repos()
	due, err := repos.Terms.ListOutstandingDueBefore(ctx, cutoff)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due terms")
	}

	created := make([]models.PaymentReminder, 0, len(due))
	for _, item := range due {
		reminderType := ClassifyDue(DaysUntil(now, item.DueDate, s.opts.Location))
		if reminderType != models.ReminderOverdue && reminderType != models.ReminderApproachingDue {
			continue
		}
		exists, err := repos.Reminders.ExistsForTermSince(ctx, item.ID, reminderType, startOfDay)
		if err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reminder history")
		}
		if exists {
			continue
		}
		reminder := s.dueReminder(item.UserID, item.PaymentTerm, now, models.TriggerDueSweep)
		if err := s.append(ctx, repos, reminder); err != nil {
			return created, err
		}
		created = append(created, *reminder)
	}
	return created, nil
}

// List returns a student's reminders newest first.
func (s *ReminderService) List(ctx context.Context, userID int64, query dto.ReminderQuery) ([]models.PaymentReminder, error) {
	reminders, err := s.uow.Repos().Reminders.List(ctx, models.ReminderFilter{
		UserID: userID,
		Types:  query.Types,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reminders")
	}
	return reminders, nil
}

func (s *ReminderService) dueReminder(userID int64, term models.PaymentTerm, today time.Time, trigger string) *models.PaymentReminder {
	days := DaysUntil(today, term.DueDate, s.opts.Location)
	reminderType := ClassifyDue(days)
	termID := term.ID
	order := term.TermOrder
	dueDate := term.DueDate.In(s.opts.Location).Format("2006-01-02")
	percentage := term.Percentage
	balance := money.Format(term.Balance, s.opts.CurrencySymbol)

	var message string
	switch reminderType {
	case models.ReminderOverdue:
		message = fmt.Sprintf("Your %s payment is %d days overdue. Outstanding balance: %s.", term.TermName, -days, balance)
	case models.ReminderApproachingDue:
		if days == 0 {
			message = fmt.Sprintf("Your %s payment of %s is due today.", term.TermName, balance)
		} else {
			message = fmt.Sprintf("Your %s payment of %s is due in %d day(s).", term.TermName, balance, days)
		}
	default:
		message = fmt.Sprintf("Your %s payment of %s is due on %s.", term.TermName, balance, dueDate)
	}

	return &models.PaymentReminder{
		UserID:             userID,
		AssessmentID:       term.AssessmentID,
		PaymentTermID:      &termID,
		Type:               reminderType,
		Message:            message,
		OutstandingBalance: term.Balance,
		TriggerReason:      trigger,
		Metadata: models.ReminderMetadata{
			TermOrder:    &order,
			DueDate:      &dueDate,
			Percentage:   &percentage,
			DaysUntilDue: &days,
		},
		CreatedAt: today,
	}
}

func (s *ReminderService) append(ctx context.Context, repos Repositories, reminder *models.PaymentReminder) error {
	if err := repos.Reminders.Create(ctx, reminder); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append reminder")
	}
	s.metrics.ObserveReminder(reminder.Type)
	s.logger.Debug("reminder appended",
		zap.Int64("user_id", reminder.UserID),
		zap.String("type", string(reminder.Type)),
		zap.String("trigger", reminder.TriggerReason))
	return nil
}
