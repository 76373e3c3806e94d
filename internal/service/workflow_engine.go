package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// EmptyApproverPolicy decides how an approval-required step with no listed
// approvers is gated.
type EmptyApproverPolicy string

const (
	// EmptyApproverAutoPass treats the step as already approved.
	EmptyApproverAutoPass EmptyApproverPolicy = "auto_pass"
	// EmptyApproverBlock keeps the step pending forever.
	EmptyApproverBlock EmptyApproverPolicy = "block"
)

// ParseEmptyApproverPolicy maps configuration input to a policy, defaulting to auto_pass.
func ParseEmptyApproverPolicy(raw string) EmptyApproverPolicy {
	if EmptyApproverPolicy(strings.ToLower(strings.TrimSpace(raw))) == EmptyApproverBlock {
		return EmptyApproverBlock
	}
	return EmptyApproverAutoPass
}

// TransitionOutcome names what a state machine step did.
type TransitionOutcome string

const (
	OutcomeStarted   TransitionOutcome = "started"
	OutcomeAdvanced  TransitionOutcome = "advanced"
	OutcomeCompleted TransitionOutcome = "completed"
	OutcomeRejected  TransitionOutcome = "rejected"
)

// Transition is the result of a state machine step. Instance is a copy; the
// caller persists it together with NewApprovals.
type Transition struct {
	Instance     *models.WorkflowInstance
	Outcome      TransitionOutcome
	PreviousStep string
	NewApprovals []models.WorkflowApproval
	Events       []models.Event
}

// WorkflowEngineOptions configures gating and event emission.
type WorkflowEngineOptions struct {
	NotificationsEnabled bool
	EmptyApproverPolicy  EmptyApproverPolicy
}

// WorkflowEngine is the pure workflow state machine. It never touches storage.
type WorkflowEngine struct {
	opts WorkflowEngineOptions
}

// NewWorkflowEngine constructs the engine.
func NewWorkflowEngine(opts WorkflowEngineOptions) *WorkflowEngine {
	if opts.EmptyApproverPolicy == "" {
		opts.EmptyApproverPolicy = EmptyApproverAutoPass
	}
	return &WorkflowEngine{opts: opts}
}

// Start creates an in-progress instance positioned at the first step.
func (e *WorkflowEngine) Start(workflow *models.Workflow, subject models.SubjectRef, initiator int64, now time.Time) (*Transition, error) {
	if workflow == nil {
		return nil, appErrors.ErrInvalidWorkflow
	}
	if err := workflow.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWorkflow.Code, appErrors.ErrInvalidWorkflow.Status, err.Error())
	}
	if !workflow.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidWorkflow, "workflow is inactive")
	}

	first := workflow.Steps[0]
	instance := &models.WorkflowInstance{
		WorkflowID:       workflow.ID,
		WorkflowableType: subject.Type,
		WorkflowableID:   subject.ID,
		CurrentStep:      first.Name,
		Status:           models.WorkflowInProgress,
		StepHistory:      models.StepHistory{},
		InitiatedBy:      initiator,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	actor := initiator
	instance.Record(first.Name, models.StepActionStarted, now, &actor, nil)

	return &Transition{
		Instance:     instance,
		Outcome:      OutcomeStarted,
		NewApprovals: e.approvalsFor(0, first, now),
	}, nil
}

// Advance moves the instance past its current step. approvals holds the
// approval records of the current step.
func (e *WorkflowEngine) Advance(workflow *models.Workflow, instance *models.WorkflowInstance, approvals []models.WorkflowApproval, actor int64, now time.Time) (*Transition, error) {
	if instance == nil || instance.Status != models.WorkflowInProgress {
		return nil, appErrors.ErrWorkflowNotInProgress
	}
	idx := workflow.StepIndex(instance.CurrentStep)
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWorkflow, fmt.Sprintf("step %q is not part of workflow %d", instance.CurrentStep, workflow.ID))
	}
	step := workflow.Steps[idx]

	if step.RequiresApproval {
		rejected, pending := e.gate(step, approvals)
		if rejected != nil {
			return e.Reject(instance, rejected, now)
		}
		if pending {
			return nil, appErrors.ErrApprovalPending
		}
	}

	next := cloneInstance(instance)
	transition := &Transition{Instance: next, PreviousStep: step.Name}
	actorID := actor

	if idx == len(workflow.Steps)-1 {
		next.Record(step.Name, models.StepActionCompleted, now, &actorID, nil)
		next.Close(models.WorkflowCompleted, now)
		transition.Outcome = OutcomeCompleted
		transition.Events = append(transition.Events, models.NewWorkflowClosedEvent(models.WorkflowClosed{
			InstanceID:  next.ID,
			Subject:     next.Subject(),
			Status:      next.Status,
			InitiatedBy: next.InitiatedBy,
		}, now))
		return transition, nil
	}

	upcoming := workflow.Steps[idx+1]
	next.CurrentStep = upcoming.Name
	next.UpdatedAt = now
	next.Record(upcoming.Name, models.StepActionAdvanced, now, &actorID, nil)
	transition.Outcome = OutcomeAdvanced
	transition.NewApprovals = e.approvalsFor(next.ID, upcoming, now)
	if e.opts.NotificationsEnabled {
		transition.Events = append(transition.Events, models.NewStepAdvancedEvent(models.WorkflowStepAdvanced{
			InstanceID:   next.ID,
			Subject:      next.Subject(),
			PreviousStep: step.Name,
			NewStep:      upcoming.Name,
			ActedBy:      actor,
		}, now))
	}
	return transition, nil
}

// Reject closes the instance because of a rejected approval.
func (e *WorkflowEngine) Reject(instance *models.WorkflowInstance, approval *models.WorkflowApproval, now time.Time) (*Transition, error) {
	if instance == nil || instance.Status != models.WorkflowInProgress {
		return nil, appErrors.ErrWorkflowNotInProgress
	}
	next := cloneInstance(instance)
	approver := approval.ApproverID
	next.Record(next.CurrentStep, models.StepActionRejected, now, &approver, approval.Comments)
	next.Close(models.WorkflowRejected, now)
	return &Transition{
		Instance:     next,
		Outcome:      OutcomeRejected,
		PreviousStep: next.CurrentStep,
		Events: []models.Event{models.NewWorkflowClosedEvent(models.WorkflowClosed{
			InstanceID:  next.ID,
			Subject:     next.Subject(),
			Status:      next.Status,
			InitiatedBy: next.InitiatedBy,
		}, now)},
	}, nil
}

// StepSatisfied reports whether the named step's gate lets the instance advance.
func (e *WorkflowEngine) StepSatisfied(workflow *models.Workflow, stepName string, approvals []models.WorkflowApproval) bool {
	idx := workflow.StepIndex(stepName)
	if idx < 0 {
		return false
	}
	step := workflow.Steps[idx]
	if !step.RequiresApproval {
		return true
	}
	rejected, pending := e.gate(step, approvals)
	return rejected == nil && !pending
}

// gate returns the first rejected approval of the step, or whether any
// approval still blocks advancement.
func (e *WorkflowEngine) gate(step models.WorkflowStep, approvals []models.WorkflowApproval) (*models.WorkflowApproval, bool) {
	relevant := 0
	pending := false
	for i := range approvals {
		approval := &approvals[i]
		if approval.StepName != step.Name {
			continue
		}
		relevant++
		switch approval.Status {
		case models.ApprovalRejected:
			return approval, false
		case models.ApprovalPending:
			pending = true
		}
	}
	if relevant == 0 {
		if len(uniqueApprovers(step.Approvers)) == 0 {
			return nil, e.opts.EmptyApproverPolicy == EmptyApproverBlock
		}
		// approvers are listed but no records exist yet
		return nil, true
	}
	return nil, pending
}

func (e *WorkflowEngine) approvalsFor(instanceID int64, step models.WorkflowStep, now time.Time) []models.WorkflowApproval {
	if !step.RequiresApproval {
		return nil
	}
	approvers := uniqueApprovers(step.Approvers)
	approvals := make([]models.WorkflowApproval, 0, len(approvers))
	for _, approverID := range approvers {
		approvals = append(approvals, models.WorkflowApproval{
			InstanceID: instanceID,
			StepName:   step.Name,
			ApproverID: approverID,
			Status:     models.ApprovalPending,
			CreatedAt:  now,
		})
	}
	return approvals
}

func uniqueApprovers(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneInstance(instance *models.WorkflowInstance) *models.WorkflowInstance {
	clone := *instance
	clone.StepHistory = append(models.StepHistory(nil), instance.StepHistory...)
	if instance.CompletedAt != nil {
		at := *instance.CompletedAt
		clone.CompletedAt = &at
	}
	return &clone
}
