package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

// gatedInstance starts the review workflow and advances it onto the
// approval step, returning the instance id and approval ids in approver order.
func gatedInstance(t *testing.T, f *workflowFixture, approvers ...int64) (int64, []int64) {
	t.Helper()
	wf := f.reviewWorkflow(approvers...)
	instance := f.start(t, wf)
	res, err := f.svc.AdvanceWorkflow(context.Background(), instance.ID, 5, engineNow)
	require.NoError(t, err)
	ids := make([]int64, 0, len(res.Approvals))
	for _, approval := range res.Approvals {
		ids = append(ids, approval.ID)
	}
	f.dispatcher.events = nil
	return instance.ID, ids
}

func newApprovalService(f *workflowFixture, autoAdvance bool) *ApprovalService {
	return NewApprovalService(f.uow, f.engine, f.dispatcher, f.metrics, zap.NewNop(), ApprovalServiceOptions{AutoAdvance: autoAdvance})
}

func TestApproveRecordsVoteWithoutAdvancing(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	instanceID, approvals := gatedInstance(t, f, 7)
	svc := newApprovalService(f, false)

	res, err := svc.Approve(context.Background(), approvals[0], 7, "  looks right ", engineNow)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalApproved, res.Approval.Status)
	require.NotNil(t, res.Approval.Comments)
	assert.Equal(t, "looks right", *res.Approval.Comments)
	assert.Empty(t, res.Transition)

	stored := f.db.instances[instanceID]
	assert.Equal(t, "finance", stored.CurrentStep)
	assert.Equal(t, models.WorkflowInProgress, stored.Status)
	last := stored.StepHistory[len(stored.StepHistory)-1]
	assert.Equal(t, models.StepActionApproved, last.Action)
	require.NotNil(t, last.UserID)
	assert.Equal(t, int64(7), *last.UserID)
	assert.Equal(t, models.ApprovalApproved, f.db.approvals[approvals[0]].Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.approvalDecisions.WithLabelValues(string(models.ApprovalApproved))))

	// the gate is open now, so a manual advance completes the workflow
	adv, err := f.svc.AdvanceWorkflow(context.Background(), instanceID, 5, engineNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, adv.Outcome)
}

func TestApproveRejectsWrongApprover(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	instanceID, approvals := gatedInstance(t, f, 7)
	svc := newApprovalService(f, true)

	_, err := svc.Approve(context.Background(), approvals[0], 8, "", engineNow)
	assert.True(t, errors.Is(err, appErrors.ErrNotAuthorizedApprover))
	assert.Equal(t, models.ApprovalPending, f.db.approvals[approvals[0]].Status)
	assert.Equal(t, "finance", f.db.instances[instanceID].CurrentStep)
}

func TestApproveTwiceIsAlreadyResolved(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	_, approvals := gatedInstance(t, f, 7, 8)
	svc := newApprovalService(f, false)

	_, err := svc.Approve(context.Background(), approvals[0], 7, "", engineNow)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), approvals[0], 7, "", engineNow)
	assert.True(t, errors.Is(err, appErrors.ErrApprovalAlreadyResolved))
}

func TestApproveUnknownApproval(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	svc := newApprovalService(f, false)
	_, err := svc.Approve(context.Background(), 404, 7, "", engineNow)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestApproveAutoAdvancesAfterLastPendingVote(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	instanceID, approvals := gatedInstance(t, f, 7, 8)
	svc := newApprovalService(f, true)

	first, err := svc.Approve(context.Background(), approvals[0], 7, "", engineNow)
	require.NoError(t, err)
	assert.Empty(t, first.Transition)
	assert.Equal(t, models.WorkflowInProgress, f.db.instances[instanceID].Status)

	second, err := svc.Approve(context.Background(), approvals[1], 8, "", engineNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, second.Transition)
	assert.Equal(t, models.WorkflowCompleted, second.Instance.Status)

	stored := f.db.instances[instanceID]
	assert.Equal(t, models.WorkflowCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, models.StepActionCompleted, stored.StepHistory[len(stored.StepHistory)-1].Action)
	assert.Equal(t, []models.EventType{models.EventWorkflowClosed}, f.dispatcher.types())
}

func TestRejectRequiresComments(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	instanceID, approvals := gatedInstance(t, f, 7)
	svc := newApprovalService(f, true)

	_, err := svc.Reject(context.Background(), approvals[0], 7, "   ", engineNow)
	assert.True(t, errors.Is(err, appErrors.ErrRejectionCommentRequired))
	assert.Equal(t, models.ApprovalPending, f.db.approvals[approvals[0]].Status)
	assert.Equal(t, models.WorkflowInProgress, f.db.instances[instanceID].Status)
}

func TestRejectClosesInstance(t *testing.T) {
	f := newWorkflowFixture(t, WorkflowEngineOptions{})
	instanceID, approvals := gatedInstance(t, f, 7, 8)
	svc := newApprovalService(f, true)

	res, err := svc.Reject(context.Background(), approvals[0], 7, "amount does not match the receipt", engineNow)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Transition)

	stored := f.db.instances[instanceID]
	assert.Equal(t, models.WorkflowRejected, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	last := stored.StepHistory[len(stored.StepHistory)-1]
	assert.Equal(t, models.StepActionRejected, last.Action)
	require.NotNil(t, last.Comments)
	assert.Equal(t, "amount does not match the receipt", *last.Comments)
	assert.Equal(t, models.ApprovalRejected, f.db.approvals[approvals[0]].Status)

	require.Len(t, f.dispatcher.events, 1)
	closed := f.dispatcher.events[0].WorkflowClosed
	require.NotNil(t, closed)
	assert.Equal(t, models.WorkflowRejected, closed.Status)
	assert.Equal(t, int64(5), closed.InitiatedBy)

	_, err = svc.Approve(context.Background(), approvals[1], 8, "", engineNow)
	assert.True(t, errors.Is(err, appErrors.ErrWorkflowNotInProgress))
	assert.Equal(t, models.ApprovalPending, f.db.approvals[approvals[1]].Status)
}
