package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReminderSchedule runs the sweep every morning at 07:00.
const DefaultReminderSchedule = "0 7 * * *"

// ReminderSchedulerConfig configures the daily due-date sweep.
type ReminderSchedulerConfig struct {
	Enabled  bool
	Schedule string
	Location *time.Location
	Timeout  time.Duration
}

// ReminderScheduler periodically appends due-date reminders and queues their
// notifications.
type ReminderScheduler struct {
	reminders     *ReminderService
	notifications notificationQueue
	logger        *zap.Logger
	cfg           ReminderSchedulerConfig
	now           func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewReminderScheduler constructs the scheduler. notifications may be nil.
func NewReminderScheduler(reminders *ReminderService, notifications notificationQueue, logger *zap.Logger, cfg ReminderSchedulerConfig) *ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultReminderSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &ReminderScheduler{
		reminders:     reminders,
		notifications: notifications,
		logger:        logger,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Start registers the sweep with cron. It is a no-op when disabled.
func (s *ReminderScheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Sugar().Infow("reminder sweep disabled")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Schedule, s.run); err != nil {
		return fmt.Errorf("schedule reminder sweep %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Sugar().Infow("reminder sweep scheduled", "schedule", s.cfg.Schedule, "location", s.cfg.Location.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep or ctx to finish.
func (s *ReminderScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.logger.Sugar().Warnw("reminder sweep did not stop in time", "error", ctx.Err())
	}
}

// Sweep runs one pass and returns the number of reminders appended.
func (s *ReminderScheduler) Sweep(ctx context.Context) (int, error) {
	reminders, err := s.reminders.SweepDue(ctx, s.now())
	for i := range reminders {
		if s.notifications == nil {
			break
		}
		if qErr := s.notifications.Enqueue(reminderNotification(&reminders[i])); qErr != nil {
			s.logger.Sugar().Warnw("reminder notification not queued", "user_id", reminders[i].UserID, "error", qErr)
		}
	}
	return len(reminders), err
}

func (s *ReminderScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	count, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Sugar().Errorw("reminder sweep failed", "appended", count, "error", err)
		return
	}
	s.logger.Sugar().Infow("reminder sweep finished", "appended", count)
}
