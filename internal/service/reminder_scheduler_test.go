package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

func TestReminderSchedulerSweepQueuesNotifications(t *testing.T) {
	db := newMemDB()
	assessment := db.addAssessment(42, "10000")
	db.addTerm(assessment.ID, 1, "5000", "5000", reminderToday.AddDate(0, 0, -3))
	db.addTerm(assessment.ID, 2, "5000", "5000", reminderToday.AddDate(0, 1, 0))
	queue := &queueStub{}
	reminders := NewReminderService(newMemUnitOfWork(db), nil, zap.NewNop(), ReminderServiceOptions{})
	scheduler := NewReminderScheduler(reminders, queue, zap.NewNop(), ReminderSchedulerConfig{Enabled: true})
	scheduler.now = func() time.Time { return reminderToday }

	count, err := scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, queue.sent, 1)
	assert.Equal(t, string(models.ReminderOverdue), queue.sent[0].Kind)
	assert.Equal(t, "Overdue payment notice", queue.sent[0].Subject)

	count, err = scheduler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReminderSchedulerLifecycle(t *testing.T) {
	reminders := NewReminderService(newMemUnitOfWork(newMemDB()), nil, zap.NewNop(), ReminderServiceOptions{})

	disabled := NewReminderScheduler(reminders, nil, zap.NewNop(), ReminderSchedulerConfig{})
	require.NoError(t, disabled.Start())
	assert.Nil(t, disabled.cron)

	invalid := NewReminderScheduler(reminders, nil, zap.NewNop(), ReminderSchedulerConfig{Enabled: true, Schedule: "every day"})
	assert.Error(t, invalid.Start())

	scheduler := NewReminderScheduler(reminders, nil, zap.NewNop(), ReminderSchedulerConfig{Enabled: true, Schedule: "*/5 * * * *"})
	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())
	assert.NotNil(t, scheduler.cron)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	scheduler.Stop(ctx)
	assert.Nil(t, scheduler.cron)
	scheduler.Stop(ctx)
}
