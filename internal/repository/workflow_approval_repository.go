package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

const workflowApprovalColumns = `id, instance_id, step_name, approver_id, status, comments, approved_at, created_at`

// WorkflowApprovalRepository persists approval votes.
type WorkflowApprovalRepository struct {
	db sqlx.ExtContext
}

// NewWorkflowApprovalRepository constructs the repository.
func NewWorkflowApprovalRepository(db sqlx.ExtContext) *WorkflowApprovalRepository {
	return &WorkflowApprovalRepository{db: db}
}

// CreateBatch inserts the approvals of one step, filling their identifiers.
func (r *WorkflowApprovalRepository) CreateBatch(ctx context.Context, approvals []models.WorkflowApproval) error {
	const query = `INSERT INTO workflow_approvals (instance_id, step_name, approver_id, status, comments, approved_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	for i := range approvals {
		approval := &approvals[i]
		if approval.CreatedAt.IsZero() {
			approval.CreatedAt = time.Now().UTC()
		}
		if approval.Status == "" {
			approval.Status = models.ApprovalPending
		}
		if err := sqlx.GetContext(ctx, r.db, &approval.ID, query,
			approval.InstanceID,
			approval.StepName,
			approval.ApproverID,
			approval.Status,
			approval.Comments,
			approval.ApprovedAt,
			approval.CreatedAt,
		); err != nil {
			return fmt.Errorf("create workflow approval for approver %d: %w", approval.ApproverID, err)
		}
	}
	return nil
}

// FindByID loads an approval.
func (r *WorkflowApprovalRepository) FindByID(ctx context.Context, id int64) (*models.WorkflowApproval, error) {
	query := `SELECT ` + workflowApprovalColumns + ` FROM workflow_approvals WHERE id = $1`
	var approval models.WorkflowApproval
	if err := sqlx.GetContext(ctx, r.db, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// ListByInstanceStep returns the approvals gating one step.
func (r *WorkflowApprovalRepository) ListByInstanceStep(ctx context.Context, instanceID int64, step string) ([]models.WorkflowApproval, error) {
	query := `SELECT ` + workflowApprovalColumns + ` FROM workflow_approvals WHERE instance_id = $1 AND step_name = $2 ORDER BY id ASC`
	var approvals []models.WorkflowApproval
	if err := sqlx.SelectContext(ctx, r.db, &approvals, query, instanceID, step); err != nil {
		return nil, fmt.Errorf("list step approvals: %w", err)
	}
	return approvals, nil
}

// ListByInstance returns every approval of an instance.
func (r *WorkflowApprovalRepository) ListByInstance(ctx context.Context, instanceID int64) ([]models.WorkflowApproval, error) {
	query := `SELECT ` + workflowApprovalColumns + ` FROM workflow_approvals WHERE instance_id = $1 ORDER BY id ASC`
	var approvals []models.WorkflowApproval
	if err := sqlx.SelectContext(ctx, r.db, &approvals, query, instanceID); err != nil {
		return nil, fmt.Errorf("list instance approvals: %w", err)
	}
	return approvals, nil
}

// ResolveApprovalParams groups the columns written when a vote is cast.
type ResolveApprovalParams struct {
	ID         int64
	Status     models.ApprovalStatus
	Comments   *string
	ApprovedAt time.Time
}

// Resolve records a vote. Only pending approvals are updated; sql.ErrNoRows
// signals the approval was already resolved.
func (r *WorkflowApprovalRepository) Resolve(ctx context.Context, params ResolveApprovalParams) error {
	query := fmt.Sprintf(`UPDATE workflow_approvals SET status = $1, comments = $2, approved_at = $3 WHERE id = $4 AND status = '%s'`,
		models.ApprovalPending)
	result, err := r.db.ExecContext(ctx, query, params.Status, params.Comments, params.ApprovedAt, params.ID)
	if err != nil {
		return fmt.Errorf("resolve workflow approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check workflow approval update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
