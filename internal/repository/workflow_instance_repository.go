package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

const workflowInstanceColumns = `id, workflow_id, workflowable_type, workflowable_id, current_step, status, step_history, initiated_by, completed_at, version, created_at, updated_at`

// WorkflowInstanceRepository persists workflow executions.
type WorkflowInstanceRepository struct {
	db sqlx.ExtContext
}

// NewWorkflowInstanceRepository constructs the repository.
func NewWorkflowInstanceRepository(db sqlx.ExtContext) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db}
}

// Create inserts an instance and fills its identifier.
func (r *WorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	if instance.UpdatedAt.IsZero() {
		instance.UpdatedAt = instance.CreatedAt
	}
	if instance.Version == 0 {
		instance.Version = 1
	}
	const query = `INSERT INTO workflow_instances (workflow_id, workflowable_type, workflowable_id, current_step, status, step_history, initiated_by, completed_at, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	if err := sqlx.GetContext(ctx, r.db, &instance.ID, query,
		instance.WorkflowID,
		instance.WorkflowableType,
		instance.WorkflowableID,
		instance.CurrentStep,
		instance.Status,
		instance.StepHistory,
		instance.InitiatedBy,
		instance.CompletedAt,
		instance.Version,
		instance.CreatedAt,
		instance.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	return nil
}

// FindByID loads an instance.
func (r *WorkflowInstanceRepository) FindByID(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	query := `SELECT ` + workflowInstanceColumns + ` FROM workflow_instances WHERE id = $1`
	var instance models.WorkflowInstance
	if err := sqlx.GetContext(ctx, r.db, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// FindByIDForUpdate loads and row-locks an instance for the current transaction.
func (r *WorkflowInstanceRepository) FindByIDForUpdate(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	query := `SELECT ` + workflowInstanceColumns + ` FROM workflow_instances WHERE id = $1 FOR UPDATE`
	var instance models.WorkflowInstance
	if err := sqlx.GetContext(ctx, r.db, &instance, query, id); err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListBySubject returns every instance attached to a subject, newest first.
func (r *WorkflowInstanceRepository) ListBySubject(ctx context.Context, subject models.SubjectRef) ([]models.WorkflowInstance, error) {
	query := `SELECT ` + workflowInstanceColumns + ` FROM workflow_instances
	WHERE workflowable_type = $1 AND workflowable_id = $2 ORDER BY created_at DESC, id DESC`
	var instances []models.WorkflowInstance
	if err := sqlx.SelectContext(ctx, r.db, &instances, query, subject.Type, subject.ID); err != nil {
		return nil, fmt.Errorf("list workflow instances: %w", err)
	}
	return instances, nil
}

// Update persists step, status and history under an optimistic version guard.
func (r *WorkflowInstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	const query = `UPDATE workflow_instances
	SET current_step = $1, status = $2, step_history = $3, completed_at = $4, version = version + 1, updated_at = $5
	WHERE id = $6 AND version = $7`
	result, err := r.db.ExecContext(ctx, query,
		instance.CurrentStep,
		instance.Status,
		instance.StepHistory,
		instance.CompletedAt,
		instance.UpdatedAt,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow instance update rows: %w", err)
	}
	if rows == 0 {
		return ErrStaleRecord
	}
	instance.Version++
	return nil
}
