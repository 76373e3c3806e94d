package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/jobs"
	"github.com/noah-isme/sma-billing-api/pkg/mailer"
)

// Notification is one message addressed to a user.
type Notification struct {
	UserID  int64
	Kind    string
	Subject string
	Body    string
}

// Notifier delivers a notification to a resolved recipient.
type Notifier interface {
	Deliver(ctx context.Context, recipient *models.User, n Notification) error
}

type mailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// MailNotifier delivers notifications by email.
type MailNotifier struct {
	mailer mailSender
}

// NewMailNotifier wraps a mail sender.
func NewMailNotifier(m mailSender) *MailNotifier {
	return &MailNotifier{mailer: m}
}

// Deliver implements Notifier.
func (n *MailNotifier) Deliver(ctx context.Context, recipient *models.User, notification Notification) error {
	if recipient.Email == "" {
		return fmt.Errorf("user %d has no email address", recipient.ID)
	}
	body := fmt.Sprintf("Dear %s,\n\n%s\n\nBilling Office", recipient.FullName, notification.Body)
	return n.mailer.Send(ctx, mailer.Message{To: []string{recipient.Email}, Subject: notification.Subject, Body: body})
}

// LogNotifier writes notifications to the log. Used when SMTP is not configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Deliver implements Notifier.
func (n *LogNotifier) Deliver(_ context.Context, recipient *models.User, notification Notification) error {
	n.logger.Info("notification",
		zap.Int64("user_id", recipient.ID),
		zap.String("kind", notification.Kind),
		zap.String("subject", notification.Subject))
	return nil
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Enabled bool
	Workers int
	Retries int
}

// NotificationService queues notifications and delivers them on a worker pool.
// Enqueue never blocks the caller.
type NotificationService struct {
	queue    *jobs.Queue
	notifier Notifier
	users    UserStore
	logger   *zap.Logger
	enabled  bool
}

// NewNotificationService constructs the service; call Start before enqueueing.
func NewNotificationService(notifier Notifier, users UserStore, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{notifier: notifier, users: users, logger: logger, enabled: cfg.Enabled}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			metrics.ObserveNotificationFailure()
		},
	})
	return svc
}

// Enabled reports whether notifications are delivered.
func (s *NotificationService) Enabled() bool {
	return s != nil && s.enabled
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains workers.
func (s *NotificationService) Stop() {
	if !s.Enabled() {
		return
	}
	s.queue.Stop()
}

// Enqueue schedules delivery.
func (s *NotificationService) Enqueue(n Notification) error {
	if !s.Enabled() {
		return nil
	}
	return s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: n.Kind, Payload: n})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	recipient, err := s.users.FindByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %d: %w", n.UserID, err)
	}
	if !recipient.Active {
		s.logger.Debug("skipping inactive recipient", zap.Int64("user_id", n.UserID))
		return nil
	}
	return s.notifier.Deliver(ctx, recipient, n)
}
