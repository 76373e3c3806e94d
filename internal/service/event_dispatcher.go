package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// Dispatcher delivers outbox events produced by billing operations.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.Event)
}

type notificationQueue interface {
	Enqueue(n Notification) error
}

// EventDispatcher routes committed outbox events to reminder dispatch and
// notification delivery. Failures are logged and never reach the caller.
type EventDispatcher struct {
	reminders     *ReminderService
	notifications notificationQueue
	uow           UnitOfWork
	logger        *zap.Logger
}

// NewEventDispatcher constructs the dispatcher. notifications may be nil.
func NewEventDispatcher(reminders *ReminderService, notifications notificationQueue, uow UnitOfWork, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{reminders: reminders, notifications: notifications, uow: uow, logger: logger}
}

// Dispatch handles events in order.
func (d *EventDispatcher) Dispatch(ctx context.Context, events []models.Event) {
	for _, evt := range events {
		if err := d.dispatch(ctx, evt); err != nil {
			d.logger.Warn("event dispatch failed",
				zap.String("event_id", evt.ID),
				zap.String("type", string(evt.Type)),
				zap.Error(err))
		}
	}
}

func (d *EventDispatcher) dispatch(ctx context.Context, evt models.Event) error {
	switch evt.Type {
	case models.EventPaymentRecorded:
		if evt.PaymentRecorded == nil {
			return fmt.Errorf("missing payload")
		}
		reminder, err := d.reminders.HandlePaymentRecorded(ctx, *evt.PaymentRecorded, evt.OccurredAt)
		if err != nil {
			return err
		}
		d.notifyReminder(reminder)
	case models.EventDueAssigned:
		if evt.DueAssigned == nil {
			return fmt.Errorf("missing payload")
		}
		reminder, err := d.reminders.HandleDueAssigned(ctx, *evt.DueAssigned, evt.OccurredAt)
		if err != nil {
			return err
		}
		d.notifyReminder(reminder)
	case models.EventWorkflowStepAdvanced:
		if evt.StepAdvanced == nil {
			return fmt.Errorf("missing payload")
		}
		approvals, err := d.uow.Repos().Approvals.ListByInstanceStep(ctx, evt.StepAdvanced.InstanceID, evt.StepAdvanced.NewStep)
		if err != nil {
			return fmt.Errorf("list approvers: %w", err)
		}
		for _, approval := range approvals {
			if approval.Status != models.ApprovalPending {
				continue
			}
			d.notify(Notification{
				UserID:  approval.ApproverID,
				Kind:    string(evt.Type),
				Subject: "Approval requested",
				Body: fmt.Sprintf("Workflow #%d for %s #%d moved from %q to %q and is awaiting your approval.",
					evt.StepAdvanced.InstanceID, evt.StepAdvanced.Subject.Type, evt.StepAdvanced.Subject.ID,
					evt.StepAdvanced.PreviousStep, evt.StepAdvanced.NewStep),
			})
		}
	case models.EventWorkflowClosed:
		if evt.WorkflowClosed == nil {
			return fmt.Errorf("missing payload")
		}
		closed := evt.WorkflowClosed
		d.notify(Notification{
			UserID:  closed.InitiatedBy,
			Kind:    string(evt.Type),
			Subject: fmt.Sprintf("Workflow %s", closed.Status),
			Body:    fmt.Sprintf("Workflow #%d for %s #%d was %s.", closed.InstanceID, closed.Subject.Type, closed.Subject.ID, closed.Status),
		})
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
	return nil
}

func (d *EventDispatcher) notifyReminder(reminder *models.PaymentReminder) {
	if reminder == nil {
		return
	}
	d.notify(reminderNotification(reminder))
}

func (d *EventDispatcher) notify(n Notification) {
	if d.notifications == nil || n.UserID == 0 {
		return
	}
	if err := d.notifications.Enqueue(n); err != nil {
		d.logger.Warn("notification not queued", zap.Int64("user_id", n.UserID), zap.String("kind", n.Kind), zap.Error(err))
	}
}

func reminderNotification(reminder *models.PaymentReminder) Notification {
	return Notification{
		UserID:  reminder.UserID,
		Kind:    string(reminder.Type),
		Subject: reminderSubject(reminder.Type),
		Body:    reminder.Message,
	}
}

func reminderSubject(t models.ReminderType) string {
	switch t {
	case models.ReminderOverdue:
		return "Overdue payment notice"
	case models.ReminderApproachingDue:
		return "Upcoming payment reminder"
	case models.ReminderPaymentReceived:
		return "Payment received - account fully paid"
	case models.ReminderPartialPayment:
		return "Payment received"
	default:
		return "Payment due notice"
	}
}

// stampEvents assigns identifiers to events that do not carry one yet.
func stampEvents(events []models.Event) []models.Event {
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
	}
	return events
}
