package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// WorkflowResult is returned by operations that move an instance.
type WorkflowResult struct {
	Instance  *models.WorkflowInstance  `json:"instance"`
	Outcome   TransitionOutcome         `json:"outcome"`
	Approvals []models.WorkflowApproval `json:"approvals"`
	Events    []models.Event            `json:"events"`
}

// WorkflowService persists workflow templates and drives their instances
// through the state machine.
type WorkflowService struct {
	uow        UnitOfWork
	engine     *WorkflowEngine
	dispatcher Dispatcher
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(uow UnitOfWork, engine *WorkflowEngine, dispatcher Dispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{uow: uow, engine: engine, dispatcher: dispatcher, metrics: metrics, validator: validate, logger: logger}
}

// CreateWorkflow registers a new active template.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, actingUserID int64, now time.Time) (*models.Workflow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	workflow := &models.Workflow{
		Name:      strings.TrimSpace(req.Name),
		Type:      models.WorkflowType(strings.ToLower(req.Type)),
		Version:   1,
		IsActive:  true,
		CreatedAt: now,
		Steps:     make(models.WorkflowSteps, 0, len(req.Steps)),
	}
	for _, step := range req.Steps {
		workflow.Steps = append(workflow.Steps, models.WorkflowStep{
			Name:             strings.TrimSpace(step.Name),
			RequiresApproval: step.RequiresApproval,
			Approvers:        uniqueApprovers(step.Approvers),
		})
	}
	if err := workflow.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWorkflow.Code, appErrors.ErrInvalidWorkflow.Status, err.Error())
	}

	err := s.uow.Do(ctx, func(repos Repositories) error {
		if err := repos.Workflows.Create(ctx, workflow); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow")
		}
		return writeAudit(ctx, repos, actingUserID, models.AuditActionWorkflowCreate, "workflow", workflow.ID, workflow, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", zap.Int64("workflow_id", workflow.ID), zap.Int("steps", len(workflow.Steps)))
	return workflow, nil
}

// StartWorkflow creates an instance of the template against a subject.
func (s *WorkflowService) StartWorkflow(ctx context.Context, workflowID int64, req dto.StartWorkflowRequest, actingUserID int64, now time.Time) (*WorkflowResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	result := &WorkflowResult{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		workflow, err := loadWorkflow(ctx, repos, workflowID)
		if err != nil {
			return err
		}
		subject := models.SubjectRef{Type: req.SubjectType, ID: req.SubjectID}
		transition, err := startInstance(ctx, repos, s.engine, workflow, subject, actingUserID, now)
		if err != nil {
			return err
		}
		if err := writeAudit(ctx, repos, actingUserID, models.AuditActionWorkflowStart, "workflow_instance", transition.Instance.ID, transition.Instance, now); err != nil {
			return err
		}
		result.Instance = transition.Instance
		result.Outcome = transition.Outcome
		result.Approvals = transition.NewApprovals
		result.Events = transition.Events
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, result)
	return result, nil
}

// AdvanceWorkflow moves an in-progress instance past its current step.
func (s *WorkflowService) AdvanceWorkflow(ctx context.Context, instanceID, actingUserID int64, now time.Time) (*WorkflowResult, error) {
	result := &WorkflowResult{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		instance, err := lockInstance(ctx, repos, instanceID)
		if err != nil {
			return err
		}
		workflow, err := loadWorkflow(ctx, repos, instance.WorkflowID)
		if err != nil {
			return err
		}
		transition, err := advanceLocked(ctx, repos, s.engine, workflow, instance, actingUserID, now)
		if err != nil {
			return err
		}
		if err := writeAudit(ctx, repos, actingUserID, models.AuditActionWorkflowAdvance, "workflow_instance", instance.ID, transition.Instance.StepHistory, now); err != nil {
			return err
		}
		result.Instance = transition.Instance
		result.Outcome = transition.Outcome
		result.Approvals = transition.NewApprovals
		result.Events = transition.Events
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, result)
	return result, nil
}

// GetInstance returns an instance by id.
func (s *WorkflowService) GetInstance(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	instance, err := s.uow.Repos().Instances.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow instance")
	}
	return instance, nil
}

// ListApprovals returns every approval of an instance.
func (s *WorkflowService) ListApprovals(ctx context.Context, instanceID int64) ([]models.WorkflowApproval, error) {
	if _, err := s.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	approvals, err := s.uow.Repos().Approvals.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	if approvals == nil {
		approvals = []models.WorkflowApproval{}
	}
	return approvals, nil
}

func (s *WorkflowService) finish(ctx context.Context, result *WorkflowResult) {
	s.metrics.ObserveTransition(result.Outcome)
	result.Events = stampEvents(result.Events)
	s.logger.Info("workflow transition",
		zap.Int64("instance_id", result.Instance.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("current_step", result.Instance.CurrentStep))
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, result.Events)
	}
}

func loadWorkflow(ctx context.Context, repos Repositories, id int64) (*models.Workflow, error) {
	workflow, err := repos.Workflows.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workflow")
	}
	return workflow, nil
}

func lockInstance(ctx context.Context, repos Repositories, id int64) (*models.WorkflowInstance, error) {
	instance, err := repos.Instances.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow instance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock workflow instance")
	}
	return instance, nil
}

// advanceLocked runs the engine against the locked instance and persists the
// resulting transition.
func advanceLocked(ctx context.Context, repos Repositories, engine *WorkflowEngine, workflow *models.Workflow, instance *models.WorkflowInstance, actor int64, now time.Time) (*Transition, error) {
	if instance.Status != models.WorkflowInProgress {
		return nil, appErrors.ErrWorkflowNotInProgress
	}
	approvals, err := repos.Approvals.ListByInstanceStep(ctx, instance.ID, instance.CurrentStep)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load step approvals")
	}
	transition, err := engine.Advance(workflow, instance, approvals, actor, now)
	if err != nil {
		return nil, err
	}
	if err := persistTransition(ctx, repos, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

func persistTransition(ctx context.Context, repos Repositories, transition *Transition) error {
	if err := saveInstance(ctx, repos, transition.Instance); err != nil {
		return err
	}
	if len(transition.NewApprovals) > 0 {
		if err := repos.Approvals.CreateBatch(ctx, transition.NewApprovals); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approvals")
		}
	}
	return nil
}

func saveInstance(ctx context.Context, repos Repositories, instance *models.WorkflowInstance) error {
	if err := repos.Instances.Update(ctx, instance); err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			return appErrors.ErrConcurrentModification
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workflow instance")
	}
	return nil
}

func writeAudit(ctx context.Context, repos Repositories, userID int64, action, resource string, resourceID int64, values interface{}, now time.Time) error {
	payload, err := json.Marshal(values)
	if err != nil {
		payload = nil
	}
	if err := repos.Audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
		CreatedAt:  now,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write audit log")
	}
	return nil
}
