package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// AssessmentRepository reads assessments; writes belong to enrollment.
type AssessmentRepository struct {
	db sqlx.ExtContext
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db sqlx.ExtContext) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// FindByID loads an assessment.
func (r *AssessmentRepository) FindByID(ctx context.Context, id int64) (*models.Assessment, error) {
	const query = `SELECT id, user_id, school_year, semester, total_amount, created_at FROM assessments WHERE id = $1`
	var assessment models.Assessment
	if err := sqlx.GetContext(ctx, r.db, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// LatestForUser returns the student's most recent assessment.
func (r *AssessmentRepository) LatestForUser(ctx context.Context, userID int64) (*models.Assessment, error) {
	const query = `SELECT id, user_id, school_year, semester, total_amount, created_at FROM assessments
	WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var assessment models.Assessment
	if err := sqlx.GetContext(ctx, r.db, &assessment, query, userID); err != nil {
		return nil, err
	}
	return &assessment, nil
}
