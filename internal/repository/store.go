package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Repositories groups the billing repositories bound to one connection or
// transaction.
type Repositories struct {
	Assessments *AssessmentRepository
	Terms       *PaymentTermRepository
	Payments    *PaymentRepository
	Reminders   *ReminderRepository
	Workflows   *WorkflowRepository
	Instances   *WorkflowInstanceRepository
	Approvals   *WorkflowApprovalRepository
	Users       *UserRepository
	Audit       *AuditRepository
}

func newRepositories(ext sqlx.ExtContext) *Repositories {
	return &Repositories{
		Assessments: NewAssessmentRepository(ext),
		Terms:       NewPaymentTermRepository(ext),
		Payments:    NewPaymentRepository(ext),
		Reminders:   NewReminderRepository(ext),
		Workflows:   NewWorkflowRepository(ext),
		Instances:   NewWorkflowInstanceRepository(ext),
		Approvals:   NewWorkflowApprovalRepository(ext),
		Users:       NewUserRepository(ext),
		Audit:       NewAuditRepository(ext),
	}
}

// Store owns the connection pool and hands out transactional repositories.
type Store struct {
	db    *sqlx.DB
	repos *Repositories
}

// NewStore constructs a store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, repos: newRepositories(db)}
}

// Repos returns repositories running outside any transaction.
func (s *Store) Repos() *Repositories {
	return s.repos
}

// WithinTx runs fn inside a single transaction. Any error returned by fn, or a
// panic, rolls back every write made through the provided repositories.
func (s *Store) WithinTx(ctx context.Context, fn func(repos *Repositories) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin billing tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(newRepositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit billing tx: %w", err)
	}
	return nil
}
