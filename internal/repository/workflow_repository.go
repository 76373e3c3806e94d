package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// WorkflowRepository persists workflow templates.
type WorkflowRepository struct {
	db sqlx.ExtContext
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db sqlx.ExtContext) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a template.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}
	if workflow.Version == 0 {
		workflow.Version = 1
	}
	const query = `INSERT INTO workflows (name, type, version, steps, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := sqlx.GetContext(ctx, r.db, &workflow.ID, query,
		workflow.Name,
		workflow.Type,
		workflow.Version,
		workflow.Steps,
		workflow.IsActive,
		workflow.CreatedAt,
	); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// FindByID loads a template.
func (r *WorkflowRepository) FindByID(ctx context.Context, id int64) (*models.Workflow, error) {
	const query = `SELECT id, name, type, version, steps, is_active, created_at FROM workflows WHERE id = $1`
	var workflow models.Workflow
	if err := sqlx.GetContext(ctx, r.db, &workflow, query, id); err != nil {
		return nil, err
	}
	return &workflow, nil
}
