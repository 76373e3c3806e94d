package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// WorkflowType groups templates by the office that owns them.
type WorkflowType string

const (
	WorkflowTypeStudent    WorkflowType = "student"
	WorkflowTypeAccounting WorkflowType = "accounting"
	WorkflowTypeGeneral    WorkflowType = "general"
)

// WorkflowStep is one step of a workflow template.
type WorkflowStep struct {
	Name             string  `json:"name"`
	RequiresApproval bool    `json:"requires_approval"`
	Approvers        []int64 `json:"approvers"`
}

// WorkflowSteps is stored as JSONB.
type WorkflowSteps []WorkflowStep

// Scan implements sql.Scanner.
func (s *WorkflowSteps) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Value implements driver.Valuer.
func (s WorkflowSteps) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return valueJSON(s)
}

// Workflow is a named, versioned template of ordered steps.
type Workflow struct {
	ID        int64         `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Type      WorkflowType  `db:"type" json:"type"`
	Version   int           `db:"version" json:"version"`
	Steps     WorkflowSteps `db:"steps" json:"steps"`
	IsActive  bool          `db:"is_active" json:"is_active"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Validate enforces at least one step and unique step names.
func (w *Workflow) Validate() error {
	switch w.Type {
	case WorkflowTypeStudent, WorkflowTypeAccounting, WorkflowTypeGeneral:
	default:
		return fmt.Errorf("unsupported workflow type %q", w.Type)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}
	seen := make(map[string]struct{}, len(w.Steps))
	for i, step := range w.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			return fmt.Errorf("step %d has no name", i+1)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate step name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// StepIndex returns the position of the named step or -1.
func (w *Workflow) StepIndex(name string) int {
	for i, step := range w.Steps {
		if step.Name == name {
			return i
		}
	}
	return -1
}

// WorkflowStatus is the lifecycle state of an instance.
type WorkflowStatus string

const (
	// WorkflowPending is never produced by the engine, which starts instances
	// in progress. It is reserved for rows stored before a start.
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowRejected   WorkflowStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowRejected
}

// History actions.
const (
	StepActionStarted   = "started"
	StepActionAdvanced  = "advanced"
	StepActionCompleted = "completed"
	StepActionApproved  = "approved"
	StepActionRejected  = "rejected"
)

// StepHistoryEntry is one line of an instance's append-only log.
type StepHistoryEntry struct {
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	UserID    *int64    `json:"user_id,omitempty"`
	Comments  *string   `json:"comments,omitempty"`
}

// StepHistory is stored as JSONB.
type StepHistory []StepHistoryEntry

// Scan implements sql.Scanner.
func (h *StepHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// Value implements driver.Valuer.
func (h StepHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return valueJSON(h)
}

// SubjectRef points at the entity a workflow instance runs against.
type SubjectRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Subject types used by billing.
const (
	SubjectPayment    = "payment"
	SubjectAssessment = "assessment"
)

// WorkflowInstance is one execution of a workflow against a subject.
type WorkflowInstance struct {
	ID               int64          `db:"id" json:"id"`
	WorkflowID       int64          `db:"workflow_id" json:"workflow_id"`
	WorkflowableType string         `db:"workflowable_type" json:"workflowable_type"`
	WorkflowableID   int64          `db:"workflowable_id" json:"workflowable_id"`
	CurrentStep      string         `db:"current_step" json:"current_step"`
	Status           WorkflowStatus `db:"status" json:"status"`
	StepHistory      StepHistory    `db:"step_history" json:"step_history"`
	InitiatedBy      int64          `db:"initiated_by" json:"initiated_by"`
	CompletedAt      *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	Version          int64          `db:"version" json:"version"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Subject returns the instance's subject reference.
func (i *WorkflowInstance) Subject() SubjectRef {
	return SubjectRef{Type: i.WorkflowableType, ID: i.WorkflowableID}
}

// Record appends a history entry.
func (i *WorkflowInstance) Record(step, action string, at time.Time, userID *int64, comments *string) {
	i.StepHistory = append(i.StepHistory, StepHistoryEntry{
		Step:      step,
		Timestamp: at,
		Action:    action,
		UserID:    userID,
		Comments:  comments,
	})
}

// Close moves the instance into a terminal status.
func (i *WorkflowInstance) Close(status WorkflowStatus, at time.Time) {
	i.Status = status
	closedAt := at
	i.CompletedAt = &closedAt
	i.UpdatedAt = at
}

// ApprovalStatus is the state of one approver's vote.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// WorkflowApproval is one (instance, step, approver) vote.
type WorkflowApproval struct {
	ID         int64          `db:"id" json:"id"`
	InstanceID int64          `db:"instance_id" json:"instance_id"`
	StepName   string         `db:"step_name" json:"step_name"`
	ApproverID int64          `db:"approver_id" json:"approver_id"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comments   *string        `db:"comments" json:"comments,omitempty"`
	ApprovedAt *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Resolved reports whether the vote has been cast.
func (a *WorkflowApproval) Resolved() bool {
	return a.Status != ApprovalPending
}
