package dto

// WorkflowStepInput defines one template step.
type WorkflowStepInput struct {
	Name             string  `json:"name" validate:"required,max=100"`
	RequiresApproval bool    `json:"requires_approval"`
	Approvers        []int64 `json:"approvers" validate:"omitempty,dive,gt=0"`
}

// CreateWorkflowRequest registers a workflow template.
type CreateWorkflowRequest struct {
	Name  string              `json:"name" validate:"required,max=150"`
	Type  string              `json:"type" validate:"required,oneof=student accounting general"`
	Steps []WorkflowStepInput `json:"steps" validate:"required,min=1,dive"`
}

// StartWorkflowRequest starts an instance of a template against a subject.
type StartWorkflowRequest struct {
	SubjectType string `json:"subject_type" validate:"required,oneof=payment assessment"`
	SubjectID   int64  `json:"subject_id" validate:"required,gt=0"`
}

// ApprovalDecisionRequest carries the approver's comments. Comments are
// mandatory when rejecting.
type ApprovalDecisionRequest struct {
	Comments string `json:"comments" validate:"max=1000"`
}
