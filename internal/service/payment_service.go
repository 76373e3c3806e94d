package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/repository"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/money"
)

// PaymentServiceOptions configures allocation policy and approval routing.
type PaymentServiceOptions struct {
	OverpaymentPolicy OverpaymentPolicy
	// ApprovalWorkflowID routes payments through a workflow when non-zero.
	ApprovalWorkflowID int64
	// ApprovalThreshold is the smallest amount routed for approval.
	ApprovalThreshold decimal.Decimal
}

// PaymentOutcome is returned by RecordPayment.
type PaymentOutcome struct {
	Payment    *models.Payment          `json:"payment"`
	Allocation *Allocation              `json:"allocation"`
	Instance   *models.WorkflowInstance `json:"workflow_instance,omitempty"`
	Events     []models.Event           `json:"events"`
}

// PaymentService is the single entry point that mutates term balances.
type PaymentService struct {
	uow        UnitOfWork
	engine     *WorkflowEngine
	dispatcher Dispatcher
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	opts       PaymentServiceOptions
}

// NewPaymentService constructs the service. dispatcher and cache may be nil.
func NewPaymentService(uow UnitOfWork, engine *WorkflowEngine, dispatcher Dispatcher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts PaymentServiceOptions) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.OverpaymentPolicy == "" {
		opts.OverpaymentPolicy = OverpaymentRecord
	}
	return &PaymentService{
		uow:        uow,
		engine:     engine,
		dispatcher: dispatcher,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		opts:       opts,
	}
}

// RecordPayment allocates req.Amount across the assessment's terms and stores
// one immutable payment, all in one unit of work. Term rows are locked for the
// duration and written under a version guard; a lost race surfaces as a
// retryable ConcurrentModification error.
func (s *PaymentService) RecordPayment(ctx context.Context, req dto.RecordPaymentRequest, actingUserID int64, now time.Time) (*PaymentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.Amount.Sign() <= 0 || !money.HasValidPrecision(req.Amount) {
		return nil, appErrors.ErrInvalidAmount
	}
	amount := money.Normalize(req.Amount)
	paidAt := now
	if req.PaidAt != nil && !req.PaidAt.IsZero() {
		paidAt = *req.PaidAt
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = "PAY-" + strings.ToUpper(uuid.NewString()[:8])
	}

	outcome := &PaymentOutcome{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		assessment, err := repos.Assessments.FindByID(ctx, req.AssessmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
		}

		terms, err := repos.Terms.ListByAssessmentForUpdate(ctx, assessment.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock payment terms")
		}
		allocation, err := AllocatePayment(terms, amount, req.TargetTermID, s.opts.OverpaymentPolicy)
		if err != nil {
			return err
		}
		for _, term := range allocation.TouchedTerms() {
			if err := repos.Terms.UpdateBalance(ctx, term, now); err != nil {
				if errors.Is(err, repository.ErrStaleRecord) {
					return appErrors.ErrConcurrentModification
				}
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term balance")
			}
		}

		routed := s.requiresApproval(amount)
		payment := &models.Payment{
			AssessmentID:  assessment.ID,
			UserID:        assessment.UserID,
			Kind:          models.TransactionKindPayment,
			Amount:        amount,
			Reference:     reference,
			PaymentMethod: req.PaymentMethod,
			PaidAt:        paidAt,
			Status:        models.PaymentStatusPaid,
			Breakdown:     allocation.Breakdown,
			RecordedBy:    actingUserID,
			CreatedAt:     now,
		}
		if routed {
			payment.Status = models.PaymentStatusPendingApproval
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payment")
		}

		events := []models.Event{models.NewPaymentRecordedEvent(models.PaymentRecorded{
			UserID:        payment.UserID,
			AssessmentID:  payment.AssessmentID,
			TransactionID: payment.ID,
			Amount:        payment.Amount,
			Reference:     payment.Reference,
		}, now)}

		var instance *models.WorkflowInstance
		if routed {
			transition, err := s.startApproval(ctx, repos, payment, actingUserID, now)
			if err != nil {
				return err
			}
			instance = transition.Instance
			events = append(events, transition.Events...)
		}

		breakdown, _ := json.Marshal(allocation.Breakdown)
		if err := repos.Audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actingUserID,
			Action:     models.AuditActionPaymentRecord,
			Resource:   "payment",
			ResourceID: &payment.ID,
			NewValues:  breakdown,
			CreatedAt:  now,
		}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write audit log")
		}

		outcome.Payment = payment
		outcome.Allocation = allocation
		outcome.Instance = instance
		outcome.Events = events
		return nil
	})
	if err != nil {
		if errors.Is(err, appErrors.ErrConcurrentModification) {
			s.metrics.ObserveAllocationConflict()
			s.logger.Warn("payment allocation conflicted", zap.Int64("assessment_id", req.AssessmentID))
		}
		return nil, err
	}

	s.metrics.ObservePayment(outcome.Payment.Amount, outcome.Allocation.Overpayment)
	if outcome.Instance != nil {
		s.metrics.ObserveTransition(OutcomeStarted)
	}
	if err := s.cache.Invalidate(ctx, summaryCacheKey(req.AssessmentID)); err != nil {
		s.logger.Warn("ledger summary not invalidated", zap.Int64("assessment_id", req.AssessmentID), zap.Error(err))
	}
	outcome.Events = stampEvents(outcome.Events)
	s.logger.Info("payment recorded",
		zap.Int64("payment_id", outcome.Payment.ID),
		zap.Int64("assessment_id", outcome.Payment.AssessmentID),
		zap.String("amount", outcome.Payment.Amount.StringFixed(money.Places)),
		zap.String("status", string(outcome.Payment.Status)))
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, outcome.Events)
	}
	return outcome, nil
}

// PaymentView is a stored payment with its review outcome resolved.
type PaymentView struct {
	Payment         *models.Payment          `json:"payment"`
	EffectiveStatus models.PaymentStatus     `json:"effective_status"`
	Instance        *models.WorkflowInstance `json:"workflow_instance,omitempty"`
}

// GetPayment loads a payment and derives its effective status from the
// latest approval instance attached to it.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*PaymentView, error) {
	repos := s.uow.Repos()
	payment, err := repos.Payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	view := &PaymentView{Payment: payment, EffectiveStatus: payment.Status}
	if payment.Status != models.PaymentStatusPendingApproval {
		return view, nil
	}
	instances, err := repos.Instances.ListBySubject(ctx, models.SubjectRef{Type: models.SubjectPayment, ID: payment.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment approval")
	}
	view.EffectiveStatus = payment.EffectiveStatus(instances)
	if len(instances) > 0 {
		view.Instance = &instances[0]
	}
	return view, nil
}

func (s *PaymentService) requiresApproval(amount decimal.Decimal) bool {
	return s.opts.ApprovalWorkflowID > 0 && amount.GreaterThanOrEqual(s.opts.ApprovalThreshold)
}

func (s *PaymentService) startApproval(ctx context.Context, repos Repositories, payment *models.Payment, actingUserID int64, now time.Time) (*Transition, error) {
	workflow, err := repos.Workflows.FindByID(ctx, s.opts.ApprovalWorkflowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidWorkflow, fmt.Sprintf("payment approval workflow %d not found", s.opts.ApprovalWorkflowID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval workflow")
	}
	return startInstance(ctx, repos, s.engine, workflow, models.SubjectRef{Type: models.SubjectPayment, ID: payment.ID}, actingUserID, now)
}

// startInstance runs the engine's Start and persists the instance and its
// first-step approvals.
func startInstance(ctx context.Context, repos Repositories, engine *WorkflowEngine, workflow *models.Workflow, subject models.SubjectRef, initiator int64, now time.Time) (*Transition, error) {
	transition, err := engine.Start(workflow, subject, initiator, now)
	if err != nil {
		return nil, err
	}
	if err := repos.Instances.Create(ctx, transition.Instance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workflow instance")
	}
	if len(transition.NewApprovals) > 0 {
		for i := range transition.NewApprovals {
			transition.NewApprovals[i].InstanceID = transition.Instance.ID
		}
		if err := repos.Approvals.CreateBatch(ctx, transition.NewApprovals); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approvals")
		}
	}
	return transition, nil
}

func summaryCacheKey(assessmentID int64) string {
	return fmt.Sprintf("billing:summary:%d", assessmentID)
}
