package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

var engineNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func twoStepWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:       3,
		Name:     "Large payment review",
		Type:     models.WorkflowTypeAccounting,
		Version:  1,
		IsActive: true,
		Steps: models.WorkflowSteps{
			{Name: "verify", RequiresApproval: false},
			{Name: "finance", RequiresApproval: true, Approvers: []int64{7}},
		},
	}
}

func startedInstance(t *testing.T, engine *WorkflowEngine, wf *models.Workflow) *models.WorkflowInstance {
	t.Helper()
	tr, err := engine.Start(wf, models.SubjectRef{Type: models.SubjectPayment, ID: 500}, 5, engineNow)
	require.NoError(t, err)
	tr.Instance.ID = 9
	return tr.Instance
}

func TestWorkflowEngineStart(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{})
	tr, err := engine.Start(twoStepWorkflow(), models.SubjectRef{Type: models.SubjectPayment, ID: 500}, 5, engineNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeStarted, tr.Outcome)
	assert.Equal(t, "verify", tr.Instance.CurrentStep)
	assert.Equal(t, models.WorkflowInProgress, tr.Instance.Status)
	assert.Empty(t, tr.NewApprovals)
	require.Len(t, tr.Instance.StepHistory, 1)
	entry := tr.Instance.StepHistory[0]
	assert.Equal(t, models.StepActionStarted, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, int64(5), *entry.UserID)
	assert.Nil(t, tr.Instance.CompletedAt)
}

func TestWorkflowEngineStartCreatesApprovalsForFirstStep(t *testing.T) {
	wf := &models.Workflow{ID: 1, Name: "Scholarship", Type: models.WorkflowTypeStudent, IsActive: true, Steps: models.WorkflowSteps{
		{Name: "dean", RequiresApproval: true, Approvers: []int64{4, 8, 4}},
	}}
	engine := NewWorkflowEngine(WorkflowEngineOptions{})
	tr, err := engine.Start(wf, models.SubjectRef{Type: models.SubjectAssessment, ID: 10}, 5, engineNow)
	require.NoError(t, err)
	require.Len(t, tr.NewApprovals, 2)
	assert.Equal(t, int64(4), tr.NewApprovals[0].ApproverID)
	assert.Equal(t, int64(8), tr.NewApprovals[1].ApproverID)
	assert.Equal(t, models.ApprovalPending, tr.NewApprovals[1].Status)
}

func TestWorkflowEngineStartRejectsInvalidTemplates(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{})

	_, err := engine.Start(&models.Workflow{Name: "empty", Type: models.WorkflowTypeGeneral, IsActive: true}, models.SubjectRef{}, 1, engineNow)
	require.ErrorIs(t, err, appErrors.ErrInvalidWorkflow)

	inactive := twoStepWorkflow()
	inactive.IsActive = false
	_, err = engine.Start(inactive, models.SubjectRef{}, 1, engineNow)
	require.ErrorIs(t, err, appErrors.ErrInvalidWorkflow)
}

func TestWorkflowEngineApprovalGating(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{NotificationsEnabled: true})
	wf := twoStepWorkflow()
	instance := startedInstance(t, engine, wf)

	tr, err := engine.Advance(wf, instance, nil, 5, engineNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, tr.Outcome)
	assert.Equal(t, "finance", tr.Instance.CurrentStep)
	require.Len(t, tr.NewApprovals, 1)
	assert.Equal(t, int64(9), tr.NewApprovals[0].InstanceID)
	assert.Equal(t, int64(7), tr.NewApprovals[0].ApproverID)
	require.Len(t, tr.Events, 1)
	assert.Equal(t, models.EventWorkflowStepAdvanced, tr.Events[0].Type)
	assert.Equal(t, "verify", tr.Events[0].StepAdvanced.PreviousStep)
	assert.Equal(t, "finance", tr.Events[0].StepAdvanced.NewStep)
	// the original instance is untouched
	assert.Equal(t, "verify", instance.CurrentStep)

	advanced := tr.Instance
	pending := tr.NewApprovals
	_, err = engine.Advance(wf, advanced, pending, 5, engineNow.Add(2*time.Minute))
	require.ErrorIs(t, err, appErrors.ErrApprovalPending)

	pending[0].Status = models.ApprovalApproved
	tr, err = engine.Advance(wf, advanced, pending, 5, engineNow.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, tr.Outcome)
	assert.Equal(t, models.WorkflowCompleted, tr.Instance.Status)
	require.NotNil(t, tr.Instance.CompletedAt)
}

func TestWorkflowEngineSingleStepCompletes(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{})
	wf := &models.Workflow{ID: 2, Name: "Acknowledge", Type: models.WorkflowTypeGeneral, IsActive: true, Steps: models.WorkflowSteps{{Name: "ack"}}}
	instance := startedInstance(t, engine, wf)

	tr, err := engine.Advance(wf, instance, nil, 6, engineNow)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, tr.Instance.Status)
	require.NotNil(t, tr.Instance.CompletedAt)
	last := tr.Instance.StepHistory[len(tr.Instance.StepHistory)-1]
	assert.Equal(t, "ack", last.Step)
	assert.Equal(t, models.StepActionCompleted, last.Action)
	require.Len(t, tr.Events, 1)
	assert.Equal(t, models.EventWorkflowClosed, tr.Events[0].Type)

	_, err = engine.Advance(wf, tr.Instance, nil, 6, engineNow)
	require.ErrorIs(t, err, appErrors.ErrWorkflowNotInProgress)
}

func TestWorkflowEngineRejectionPropagates(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{})
	wf := &models.Workflow{ID: 4, Name: "Dual", Type: models.WorkflowTypeAccounting, IsActive: true, Steps: models.WorkflowSteps{
		{Name: "board", RequiresApproval: true, Approvers: []int64{7, 8}},
		{Name: "post"},
	}}
	instance := startedInstance(t, engine, wf)
	comment := "receipt does not match"
	approvals := []models.WorkflowApproval{
		{ID: 1, InstanceID: 9, StepName: "board", ApproverID: 7, Status: models.ApprovalApproved},
		{ID: 2, InstanceID: 9, StepName: "board", ApproverID: 8, Status: models.ApprovalRejected, Comments: &comment},
	}

	tr, err := engine.Advance(wf, instance, approvals, 5, engineNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, tr.Outcome)
	assert.Equal(t, models.WorkflowRejected, tr.Instance.Status)
	require.NotNil(t, tr.Instance.CompletedAt)
	last := tr.Instance.StepHistory[len(tr.Instance.StepHistory)-1]
	assert.Equal(t, models.StepActionRejected, last.Action)
	require.NotNil(t, last.Comments)
	assert.Equal(t, comment, *last.Comments)

	_, err = engine.Advance(wf, tr.Instance, approvals, 5, engineNow)
	require.ErrorIs(t, err, appErrors.ErrWorkflowNotInProgress)
	for _, entry := range tr.Instance.StepHistory {
		assert.NotEqual(t, models.StepActionAdvanced, entry.Action)
	}
}

func TestWorkflowEngineEmptyApproverPolicies(t *testing.T) {
	wf := &models.Workflow{ID: 5, Name: "Orphan", Type: models.WorkflowTypeGeneral, IsActive: true, Steps: models.WorkflowSteps{
		{Name: "review", RequiresApproval: true},
		{Name: "close"},
	}}

	autoPass := NewWorkflowEngine(WorkflowEngineOptions{EmptyApproverPolicy: EmptyApproverAutoPass})
	instance := startedInstance(t, autoPass, wf)
	tr, err := autoPass.Advance(wf, instance, nil, 5, engineNow)
	require.NoError(t, err)
	assert.Equal(t, "close", tr.Instance.CurrentStep)
	assert.True(t, autoPass.StepSatisfied(wf, "review", nil))

	block := NewWorkflowEngine(WorkflowEngineOptions{EmptyApproverPolicy: EmptyApproverBlock})
	instance = startedInstance(t, block, wf)
	_, err = block.Advance(wf, instance, nil, 5, engineNow)
	require.ErrorIs(t, err, appErrors.ErrApprovalPending)
	assert.False(t, block.StepSatisfied(wf, "review", nil))
}

func TestWorkflowEngineNotificationsDisabledSuppressesStepEvents(t *testing.T) {
	engine := NewWorkflowEngine(WorkflowEngineOptions{NotificationsEnabled: false})
	wf := twoStepWorkflow()
	instance := startedInstance(t, engine, wf)

	tr, err := engine.Advance(wf, instance, nil, 5, engineNow)
	require.NoError(t, err)
	assert.Empty(t, tr.Events)
}

func TestParseEmptyApproverPolicy(t *testing.T) {
	assert.Equal(t, EmptyApproverBlock, ParseEmptyApproverPolicy("BLOCK"))
	assert.Equal(t, EmptyApproverAutoPass, ParseEmptyApproverPolicy(""))
}
