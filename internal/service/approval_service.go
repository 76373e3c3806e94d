package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// ApprovalResult is returned by Approve and Reject. Transition is set when the
// vote moved the instance.
type ApprovalResult struct {
	Approval   *models.WorkflowApproval `json:"approval"`
	Instance   *models.WorkflowInstance `json:"instance"`
	Transition TransitionOutcome        `json:"transition,omitempty"`
	Events     []models.Event           `json:"events"`
}

// ApprovalServiceOptions configures the approval gate.
type ApprovalServiceOptions struct {
	// AutoAdvance advances the instance once the last pending approval of
	// its current step is approved.
	AutoAdvance bool
}

// ApprovalService records approver votes.
type ApprovalService struct {
	uow        UnitOfWork
	engine     *WorkflowEngine
	dispatcher Dispatcher
	metrics    *MetricsService
	logger     *zap.Logger
	opts       ApprovalServiceOptions
}

// NewApprovalService constructs the service.
func NewApprovalService(uow UnitOfWork, engine *WorkflowEngine, dispatcher Dispatcher, metrics *MetricsService, logger *zap.Logger, opts ApprovalServiceOptions) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{uow: uow, engine: engine, dispatcher: dispatcher, metrics: metrics, logger: logger, opts: opts}
}

// Approve casts an approving vote.
func (s *ApprovalService) Approve(ctx context.Context, approvalID, approverUserID int64, comments string, now time.Time) (*ApprovalResult, error) {
	result := &ApprovalResult{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		approval, instance, err := s.prepare(ctx, repos, approvalID, approverUserID)
		if err != nil {
			return err
		}
		note := optionalComment(comments)
		if err := resolveApproval(ctx, repos, approval, models.ApprovalApproved, note, now); err != nil {
			return err
		}

		approver := approverUserID
		instance.Record(approval.StepName, models.StepActionApproved, now, &approver, note)
		instance.UpdatedAt = now
		if err := saveInstance(ctx, repos, instance); err != nil {
			return err
		}
		result.Approval = approval
		result.Instance = instance

		if s.opts.AutoAdvance {
			transition, err := s.autoAdvance(ctx, repos, instance, approverUserID, now)
			if err != nil {
				return err
			}
			if transition != nil {
				result.Instance = transition.Instance
				result.Transition = transition.Outcome
				result.Events = transition.Events
			}
		}
		return writeAudit(ctx, repos, approverUserID, models.AuditActionApprovalApprove, "workflow_approval", approval.ID, approval, now)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, result)
	return result, nil
}

// Reject casts a rejecting vote and closes the instance as rejected.
func (s *ApprovalService) Reject(ctx context.Context, approvalID, approverUserID int64, comments string, now time.Time) (*ApprovalResult, error) {
	note := optionalComment(comments)
	if note == nil {
		return nil, appErrors.ErrRejectionCommentRequired
	}
	result := &ApprovalResult{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		approval, instance, err := s.prepare(ctx, repos, approvalID, approverUserID)
		if err != nil {
			return err
		}
		if err := resolveApproval(ctx, repos, approval, models.ApprovalRejected, note, now); err != nil {
			return err
		}
		transition, err := s.engine.Reject(instance, approval, now)
		if err != nil {
			return err
		}
		if err := saveInstance(ctx, repos, transition.Instance); err != nil {
			return err
		}
		result.Approval = approval
		result.Instance = transition.Instance
		result.Transition = transition.Outcome
		result.Events = transition.Events
		return writeAudit(ctx, repos, approverUserID, models.AuditActionApprovalReject, "workflow_approval", approval.ID, approval, now)
	})
	if err != nil {
		return nil, err
	}
	s.finish(ctx, result)
	return result, nil
}

// prepare loads the approval, checks the caller and locks the instance.
func (s *ApprovalService) prepare(ctx context.Context, repos Repositories, approvalID, approverUserID int64) (*models.WorkflowApproval, *models.WorkflowInstance, error) {
	approval, err := repos.Approvals.FindByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "approval not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval")
	}
	if approval.ApproverID != approverUserID {
		return nil, nil, appErrors.ErrNotAuthorizedApprover
	}
	if approval.Resolved() {
		return nil, nil, appErrors.ErrApprovalAlreadyResolved
	}
	instance, err := lockInstance(ctx, repos, approval.InstanceID)
	if err != nil {
		return nil, nil, err
	}
	if instance.Status != models.WorkflowInProgress {
		return nil, nil, appErrors.ErrWorkflowNotInProgress
	}
	if instance.CurrentStep != approval.StepName {
		return nil, nil, appErrors.Clone(appErrors.ErrWorkflowNotInProgress, "approval belongs to a step the workflow has already left")
	}
	return approval, instance, nil
}

// autoAdvance advances the instance when no approval of its current step is
// still pending. It returns nil when the step stays gated.
func (s *ApprovalService) autoAdvance(ctx context.Context, repos Repositories, instance *models.WorkflowInstance, actor int64, now time.Time) (*Transition, error) {
	approvals, err := repos.Approvals.ListByInstanceStep(ctx, instance.ID, instance.CurrentStep)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load step approvals")
	}
	workflow, err := loadWorkflow(ctx, repos, instance.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !s.engine.StepSatisfied(workflow, instance.CurrentStep, approvals) {
		return nil, nil
	}
	return advanceLocked(ctx, repos, s.engine, workflow, instance, actor, now)
}

func (s *ApprovalService) finish(ctx context.Context, result *ApprovalResult) {
	s.metrics.ObserveApprovalDecision(result.Approval.Status)
	if result.Transition != "" {
		s.metrics.ObserveTransition(result.Transition)
	}
	result.Events = stampEvents(result.Events)
	s.logger.Info("approval resolved",
		zap.Int64("approval_id", result.Approval.ID),
		zap.Int64("instance_id", result.Instance.ID),
		zap.String("decision", string(result.Approval.Status)),
		zap.String("instance_status", string(result.Instance.Status)))
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, result.Events)
	}
}

func resolveApproval(ctx context.Context, repos Repositories, approval *models.WorkflowApproval, status models.ApprovalStatus, comments *string, now time.Time) error {
	err := repos.Approvals.Resolve(ctx, repository.ResolveApprovalParams{
		ID:         approval.ID,
		Status:     status,
		Comments:   comments,
		ApprovedAt: now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrApprovalAlreadyResolved
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve approval")
	}
	resolvedAt := now
	approval.Status = status
	approval.Comments = comments
	approval.ApprovedAt = &resolvedAt
	return nil
}

func optionalComment(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
