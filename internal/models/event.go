package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names outbox events produced by billing operations.
type EventType string

const (
	EventPaymentRecorded      EventType = "payment.recorded"
	EventDueAssigned          EventType = "payment_term.due_assigned"
	EventWorkflowStepAdvanced EventType = "workflow.step_advanced"
	EventWorkflowClosed       EventType = "workflow.closed"
)

// PaymentRecorded is emitted once per recorded payment.
type PaymentRecorded struct {
	UserID        int64           `json:"user_id"`
	AssessmentID  int64           `json:"assessment_id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
}

// DueAssigned is emitted when a term is created for a student.
type DueAssigned struct {
	UserID int64       `json:"user_id"`
	Term   PaymentTerm `json:"term"`
}

// WorkflowStepAdvanced is emitted when an instance moves to its next step.
type WorkflowStepAdvanced struct {
	InstanceID   int64      `json:"instance_id"`
	Subject      SubjectRef `json:"subject"`
	PreviousStep string     `json:"previous_step"`
	NewStep      string     `json:"new_step"`
	ActedBy      int64      `json:"acted_by"`
}

// WorkflowClosed is emitted when an instance completes or is rejected.
type WorkflowClosed struct {
	InstanceID  int64          `json:"instance_id"`
	Subject     SubjectRef     `json:"subject"`
	Status      WorkflowStatus `json:"status"`
	InitiatedBy int64          `json:"initiated_by"`
}

// Event is an outbox entry returned alongside an operation's result. Exactly
// one payload field is set, matching Type.
type Event struct {
	ID              string                `json:"id"`
	Type            EventType             `json:"type"`
	OccurredAt      time.Time             `json:"occurred_at"`
	PaymentRecorded *PaymentRecorded      `json:"payment_recorded,omitempty"`
	DueAssigned     *DueAssigned          `json:"due_assigned,omitempty"`
	StepAdvanced    *WorkflowStepAdvanced `json:"step_advanced,omitempty"`
	WorkflowClosed  *WorkflowClosed       `json:"workflow_closed,omitempty"`
}

// NewPaymentRecordedEvent wraps a PaymentRecorded payload.
func NewPaymentRecordedEvent(payload PaymentRecorded, at time.Time) Event {
	return Event{Type: EventPaymentRecorded, OccurredAt: at, PaymentRecorded: &payload}
}

// NewDueAssignedEvent wraps a DueAssigned payload.
func NewDueAssignedEvent(payload DueAssigned, at time.Time) Event {
	return Event{Type: EventDueAssigned, OccurredAt: at, DueAssigned: &payload}
}

// NewStepAdvancedEvent wraps a WorkflowStepAdvanced payload.
func NewStepAdvancedEvent(payload WorkflowStepAdvanced, at time.Time) Event {
	return Event{Type: EventWorkflowStepAdvanced, OccurredAt: at, StepAdvanced: &payload}
}

// NewWorkflowClosedEvent wraps a WorkflowClosed payload.
func NewWorkflowClosedEvent(payload WorkflowClosed, at time.Time) Event {
	return Event{Type: EventWorkflowClosed, OccurredAt: at, WorkflowClosed: &payload}
}
