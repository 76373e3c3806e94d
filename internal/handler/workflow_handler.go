package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/service"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type workflowService interface {
	CreateWorkflow(ctx context.Context, req dto.CreateWorkflowRequest, actingUserID int64, now time.Time) (*models.Workflow, error)
	StartWorkflow(ctx context.Context, workflowID int64, req dto.StartWorkflowRequest, actingUserID int64, now time.Time) (*service.WorkflowResult, error)
	AdvanceWorkflow(ctx context.Context, instanceID, actingUserID int64, now time.Time) (*service.WorkflowResult, error)
	GetInstance(ctx context.Context, id int64) (*models.WorkflowInstance, error)
	ListApprovals(ctx context.Context, instanceID int64) ([]models.WorkflowApproval, error)
}

type approvalService interface {
	Approve(ctx context.Context, approvalID, approverUserID int64, comments string, now time.Time) (*service.ApprovalResult, error)
	Reject(ctx context.Context, approvalID, approverUserID int64, comments string, now time.Time) (*service.ApprovalResult, error)
}

// WorkflowHandler exposes workflow templates, instances and approvals.
type WorkflowHandler struct {
	workflows workflowService
	approvals approvalService
	now       Clock
}

// NewWorkflowHandler builds the handler.
func NewWorkflowHandler(workflows workflowService, approvals approvalService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, approvals: approvals, now: defaultClock}
}

// CreateWorkflow godoc
// @Summary Register a workflow template
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Template"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows [post]
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	workflow, err := h.workflows.CreateWorkflow(c.Request.Context(), req, userID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, workflow)
}

// StartWorkflow godoc
// @Summary Start a workflow instance against a subject
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path int true "Workflow ID"
// @Param payload body dto.StartWorkflowRequest true "Subject"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id}/instances [post]
func (h *WorkflowHandler) StartWorkflow(c *gin.Context) {
	workflowID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	result, err := h.workflows.StartWorkflow(c.Request.Context(), workflowID, req, userID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetInstance godoc
// @Summary Get a workflow instance
// @Tags Workflows
// @Produce json
// @Param id path int true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflow-instances/{id} [get]
func (h *WorkflowHandler) GetInstance(c *gin.Context) {
	instanceID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	instance, err := h.workflows.GetInstance(c.Request.Context(), instanceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// ListApprovals godoc
// @Summary List the approvals of a workflow instance
// @Tags Workflows
// @Produce json
// @Param id path int true "Instance ID"
// @Success 200 {object} response.Envelope
// @Router /workflow-instances/{id}/approvals [get]
func (h *WorkflowHandler) ListApprovals(c *gin.Context) {
	instanceID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	approvals, err := h.workflows.ListApprovals(c.Request.Context(), instanceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// Advance godoc
// @Summary Advance a workflow instance to its next step
// @Tags Workflows
// @Produce json
// @Param id path int true "Instance ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflow-instances/{id}/advance [post]
func (h *WorkflowHandler) Advance(c *gin.Context) {
	instanceID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.workflows.AdvanceWorkflow(c.Request.Context(), instanceID, userID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve a pending workflow approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param payload body dto.ApprovalDecisionRequest false "Comments"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflow-approvals/{id}/approve [post]
func (h *WorkflowHandler) Approve(c *gin.Context) {
	h.decide(c, h.approvals.Approve)
}

// Reject godoc
// @Summary Reject a pending workflow approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Approval ID"
// @Param payload body dto.ApprovalDecisionRequest true "Comments (required)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workflow-approvals/{id}/reject [post]
func (h *WorkflowHandler) Reject(c *gin.Context) {
	h.decide(c, h.approvals.Reject)
}

type decisionFunc func(ctx context.Context, approvalID, approverUserID int64, comments string, now time.Time) (*service.ApprovalResult, error)

func (h *WorkflowHandler) decide(c *gin.Context, decide decisionFunc) {
	approvalID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ApprovalDecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			return
		}
	}
	result, err := decide(c.Request.Context(), approvalID, userID, req.Comments, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
