package service

import (
	"context"
	"time"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
)

// AssessmentStore reads assessments.
type AssessmentStore interface {
	FindByID(ctx context.Context, id int64) (*models.Assessment, error)
	LatestForUser(ctx context.Context, userID int64) (*models.Assessment, error)
}

// PaymentTermStore reads and writes installment terms.
type PaymentTermStore interface {
	ListByAssessment(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error)
	ListByAssessmentForUpdate(ctx context.Context, assessmentID int64) ([]models.PaymentTerm, error)
	Create(ctx context.Context, term *models.PaymentTerm) error
	UpdateBalance(ctx context.Context, term *models.PaymentTerm, updatedAt time.Time) error
	ListOutstandingDueBefore(ctx context.Context, cutoff time.Time) ([]repository.DueTerm, error)
}

// PaymentStore persists payment transactions.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id int64) (*models.Payment, error)
}

// ReminderStore is the append-only reminder log.
type ReminderStore interface {
	Create(ctx context.Context, reminder *models.PaymentReminder) error
	List(ctx context.Context, filter models.ReminderFilter) ([]models.PaymentReminder, error)
	ExistsForTermSince(ctx context.Context, termID int64, reminderType models.ReminderType, since time.Time) (bool, error)
}

// WorkflowStore persists workflow templates.
type WorkflowStore interface {
	Create(ctx context.Context, workflow *models.Workflow) error
	FindByID(ctx context.Context, id int64) (*models.Workflow, error)
}

// WorkflowInstanceStore persists workflow executions.
type WorkflowInstanceStore interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	FindByID(ctx context.Context, id int64) (*models.WorkflowInstance, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*models.WorkflowInstance, error)
	ListBySubject(ctx context.Context, subject models.SubjectRef) ([]models.WorkflowInstance, error)
	Update(ctx context.Context, instance *models.WorkflowInstance) error
}

// WorkflowApprovalStore persists approval votes.
type WorkflowApprovalStore interface {
	CreateBatch(ctx context.Context, approvals []models.WorkflowApproval) error
	FindByID(ctx context.Context, id int64) (*models.WorkflowApproval, error)
	ListByInstanceStep(ctx context.Context, instanceID int64, step string) ([]models.WorkflowApproval, error)
	ListByInstance(ctx context.Context, instanceID int64) ([]models.WorkflowApproval, error)
	Resolve(ctx context.Context, params repository.ResolveApprovalParams) error
}

// UserStore resolves notification recipients.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Repositories is the set of stores bound to one connection or transaction.
type Repositories struct {
	Assessments AssessmentStore
	Terms       PaymentTermStore
	Payments    PaymentStore
	Reminders   ReminderStore
	Workflows   WorkflowStore
	Instances   WorkflowInstanceStore
	Approvals   WorkflowApprovalStore
	Users       UserStore
	Audit       auditLogger
}

// UnitOfWork runs a callback atomically. Every write made through the
// repositories handed to fn is discarded when fn returns an error.
type UnitOfWork interface {
	Repos() Repositories
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

type sqlUnitOfWork struct {
	store *repository.Store
}

// NewSQLUnitOfWork adapts a repository.Store to UnitOfWork.
func NewSQLUnitOfWork(store *repository.Store) UnitOfWork {
	return &sqlUnitOfWork{store: store}
}

func (u *sqlUnitOfWork) Repos() Repositories {
	return fromRepository(u.store.Repos())
}

func (u *sqlUnitOfWork) Do(ctx context.Context, fn func(repos Repositories) error) error {
	return u.store.WithinTx(ctx, func(r *repository.Repositories) error {
		return fn(fromRepository(r))
	})
}

func fromRepository(r *repository.Repositories) Repositories {
	return Repositories{
		Assessments: r.Assessments,
		Terms:       r.Terms,
		Payments:    r.Payments,
		Reminders:   r.Reminders,
		Workflows:   r.Workflows,
		Instances:   r.Instances,
		Approvals:   r.Approvals,
		Users:       r.Users,
		Audit:       r.Audit,
	}
}
