package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/money"
)

// LedgerView is an assessment with its ordered terms and their totals.
type LedgerView struct {
	Assessment models.Assessment         `json:"assessment"`
	Terms      []models.PaymentTerm      `json:"terms"`
	Summary    models.OutstandingSummary `json:"summary"`
}

// TermsOutcome is returned by CreateTerms.
type TermsOutcome struct {
	Terms  []models.PaymentTerm `json:"terms"`
	Events []models.Event       `json:"events"`
}

// LedgerService manages the installment terms of assessments.
type LedgerService struct {
	uow        UnitOfWork
	dispatcher Dispatcher
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	cacheTTL   time.Duration
}

// NewLedgerService constructs the service. dispatcher and cache may be nil.
func NewLedgerService(uow UnitOfWork, dispatcher Dispatcher, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{uow: uow, dispatcher: dispatcher, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// Ledger returns the assessment's terms in term order with their summary.
func (s *LedgerService) Ledger(ctx context.Context, assessmentID int64) (*LedgerView, error) {
	key := summaryCacheKey(assessmentID)
	var cached LedgerView
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("ledger summary cache read failed", zap.Int64("assessment_id", assessmentID), zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	repos := s.uow.Repos()
	assessment, err := repos.Assessments.FindByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	terms, err := repos.Terms.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment terms")
	}
	if terms == nil {
		terms = []models.PaymentTerm{}
	}
	view := &LedgerView{
		Assessment: *assessment,
		Terms:      terms,
		Summary:    models.Summarize(assessmentID, terms),
	}
	s.storeView(ctx, repos, key, view)
	return view, nil
}

// storeView caches view, then drops the entry again when the terms moved on
// while it was being built. An allocation that commits after the recheck
// invalidates the key itself.
func (s *LedgerService) storeView(ctx context.Context, repos Repositories, key string, view *LedgerView) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, view, s.cacheTTL); err != nil {
		s.logger.Warn("ledger summary not cached", zap.Int64("assessment_id", view.Assessment.ID), zap.Error(err))
		return
	}
	current, err := repos.Terms.ListByAssessment(ctx, view.Assessment.ID)
	if err == nil && sameTermVersions(view.Terms, current) {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("stale ledger summary not dropped", zap.Int64("assessment_id", view.Assessment.ID), zap.Error(err))
	}
}

func sameTermVersions(a, b []models.PaymentTerm) bool {
	if len(a) != len(b) {
		return false
	}
	versions := make(map[int64]int64, len(a))
	for _, term := range a {
		versions[term.ID] = term.Version
	}
	for _, term := range b {
		if v, ok := versions[term.ID]; !ok || v != term.Version {
			return false
		}
	}
	return true
}

// CreateTerms assigns installment terms to an assessment. Each term starts
// with its full amount outstanding and yields one DueAssigned event.
func (s *LedgerService) CreateTerms(ctx context.Context, assessmentID int64, req dto.CreateTermsRequest, actingUserID int64, now time.Time) (*TermsOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	inputs := append([]dto.TermInput(nil), req.Terms...)
	sort.SliceStable(inputs, func(i, j int) bool { return inputs[i].TermOrder < inputs[j].TermOrder })
	seen := make(map[int]struct{}, len(inputs))
	for _, input := range inputs {
		if input.Amount.Sign() <= 0 || !money.HasValidPrecision(input.Amount) {
			return nil, appErrors.Clone(appErrors.ErrInvalidAmount, fmt.Sprintf("term %d: amount must be positive with at most two decimal places", input.TermOrder))
		}
		if input.Percentage.IsNegative() || input.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("term %d: percentage must be between 0 and 100", input.TermOrder))
		}
		if _, dup := seen[input.TermOrder]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("term order %d is repeated", input.TermOrder))
		}
		seen[input.TermOrder] = struct{}{}
	}

	outcome := &TermsOutcome{}
	err := s.uow.Do(ctx, func(repos Repositories) error {
		assessment, err := repos.Assessments.FindByID(ctx, assessmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
		}
		existing, err := repos.Terms.ListByAssessmentForUpdate(ctx, assessmentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment terms")
		}
		for _, term := range existing {
			if _, clash := seen[term.TermOrder]; clash {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("term order %d already exists", term.TermOrder))
			}
		}

		created := make([]models.PaymentTerm, 0, len(inputs))
		events := make([]models.Event, 0, len(inputs))
		for _, input := range inputs {
			amount := money.Normalize(input.Amount)
			percentage := input.Percentage
			if percentage.IsZero() && assessment.TotalAmount.Sign() > 0 {
				percentage = amount.Mul(decimal.NewFromInt(100)).Div(assessment.TotalAmount).Round(money.Places)
			}
			term := models.PaymentTerm{
				AssessmentID: assessmentID,
				TermName:     strings.TrimSpace(input.TermName),
				TermOrder:    input.TermOrder,
				Amount:       amount,
				Balance:      amount,
				Percentage:   percentage,
				DueDate:      input.DueDate,
				Status:       models.PaymentTermPending,
				CreatedAt:    now,
			}
			if err := repos.Terms.Create(ctx, &term); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment term")
			}
			created = append(created, term)
			events = append(events, models.NewDueAssignedEvent(models.DueAssigned{UserID: assessment.UserID, Term: term}, now))
		}

		newValues, _ := json.Marshal(created)
		if err := repos.Audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actingUserID,
			Action:     models.AuditActionTermsCreate,
			Resource:   "assessment",
			ResourceID: &assessmentID,
			NewValues:  newValues,
			CreatedAt:  now,
		}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write audit log")
		}

		outcome.Terms = created
		outcome.Events = events
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, summaryCacheKey(assessmentID)); err != nil {
		s.logger.Warn("ledger summary not invalidated", zap.Int64("assessment_id", assessmentID), zap.Error(err))
	}
	outcome.Events = stampEvents(outcome.Events)
	s.logger.Info("payment terms created", zap.Int64("assessment_id", assessmentID), zap.Int("count", len(outcome.Terms)))
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, outcome.Events)
	}
	return outcome, nil
}
