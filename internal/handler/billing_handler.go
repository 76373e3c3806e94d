package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-billing-api/internal/dto"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/internal/service"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/export"
	"github.com/noah-isme/sma-billing-api/pkg/response"
)

type ledgerService interface {
	Ledger(ctx context.Context, assessmentID int64) (*service.LedgerView, error)
	CreateTerms(ctx context.Context, assessmentID int64, req dto.CreateTermsRequest, actingUserID int64, now time.Time) (*service.TermsOutcome, error)
}

type paymentService interface {
	RecordPayment(ctx context.Context, req dto.RecordPaymentRequest, actingUserID int64, now time.Time) (*service.PaymentOutcome, error)
	GetPayment(ctx context.Context, paymentID int64) (*service.PaymentView, error)
}

type reminderLister interface {
	List(ctx context.Context, userID int64, query dto.ReminderQuery) ([]models.PaymentReminder, error)
}

const (
	defaultReminderLimit = 50
	maxReminderLimit     = 200
)

// BillingHandler exposes the payment term ledger and payment posting.
type BillingHandler struct {
	ledger    ledgerService
	payments  paymentService
	reminders reminderLister
	now       Clock
}

// NewBillingHandler builds the handler.
func NewBillingHandler(ledger ledgerService, payments paymentService, reminders reminderLister) *BillingHandler {
	return &BillingHandler{ledger: ledger, payments: payments, reminders: reminders, now: defaultClock}
}

// Ledger godoc
// @Summary Get the installment ledger of an assessment
// @Tags Billing
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id}/ledger [get]
func (h *BillingHandler) Ledger(c *gin.Context) {
	assessmentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.ledger.Ledger(c.Request.Context(), assessmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Statement godoc
// @Summary Download the installment ledger as CSV
// @Tags Billing
// @Produce text/csv
// @Param id path int true "Assessment ID"
// @Success 200 {string} string "CSV statement"
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id}/statement.csv [get]
func (h *BillingHandler) Statement(c *gin.Context) {
	assessmentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.ledger.Ledger(c.Request.Context(), assessmentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"assessment-%d-statement.csv\"", assessmentID))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, statementTable(view)); err != nil {
		_ = c.Error(err)
	}
}

func statementTable(view *service.LedgerView) export.Table {
	table := export.Table{Headers: []string{"term_order", "term_name", "due_date", "amount", "balance", "status"}}
	for _, term := range view.Terms {
		table.AddRow(
			strconv.Itoa(term.TermOrder),
			term.TermName,
			term.DueDate.Format("2006-01-02"),
			term.Amount.StringFixed(2),
			term.Balance.StringFixed(2),
			string(term.Status),
		)
	}
	table.AddRow("", "TOTAL", "", view.Summary.Total.StringFixed(2), view.Summary.Outstanding.StringFixed(2), "")
	return table
}

// CreateTerms godoc
// @Summary Assign installment terms to an assessment
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param payload body dto.CreateTermsRequest true "Terms"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assessments/{id}/terms [post]
func (h *BillingHandler) CreateTerms(c *gin.Context) {
	assessmentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	outcome, err := h.ledger.CreateTerms(c.Request.Context(), assessmentID, req, userID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome.Terms)
}

// RecordPayment godoc
// @Summary Record a payment against an assessment
// @Description Allocates the amount across outstanding terms in order. Payments at or above the approval threshold are parked for approval and return 202.
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param payload body dto.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assessments/{id}/payments [post]
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	assessmentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	userID, err := actingUserID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	req.AssessmentID = assessmentID

	outcome, err := h.payments.RecordPayment(c.Request.Context(), req, userID, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	if outcome.Instance != nil {
		response.Accepted(c, outcome, map[string]interface{}{"workflow_instance_id": outcome.Instance.ID})
		return
	}
	response.Created(c, outcome)
}

// Payment godoc
// @Summary Get a payment with its approval outcome
// @Description effective_status is approved or rejected once the approval workflow of a routed payment closes.
// @Tags Billing
// @Produce json
// @Param id path int true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *BillingHandler) Payment(c *gin.Context) {
	paymentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Reminders godoc
// @Summary List a student's payment reminders
// @Tags Billing
// @Produce json
// @Param id path int true "Student user ID"
// @Param types query string false "Comma separated reminder types"
// @Param limit query int false "Page size (default 50, max 200)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/reminders [get]
func (h *BillingHandler) Reminders(c *gin.Context) {
	userID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	query, err := reminderQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	reminders, err := h.reminders.List(c.Request.Context(), userID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reminders, nil, map[string]interface{}{"limit": query.Limit, "offset": query.Offset})
}

var knownReminderTypes = map[models.ReminderType]struct{}{
	models.ReminderOverdue:         {},
	models.ReminderApproachingDue:  {},
	models.ReminderPaymentDue:      {},
	models.ReminderPartialPayment:  {},
	models.ReminderPaymentReceived: {},
}

func reminderQuery(c *gin.Context) (dto.ReminderQuery, error) {
	var query dto.ReminderQuery
	for _, raw := range strings.Split(c.Query("types"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		t := models.ReminderType(raw)
		if _, ok := knownReminderTypes[t]; !ok {
			return query, appErrors.Clone(appErrors.ErrValidation, "unknown reminder type "+raw)
		}
		query.Types = append(query.Types, t)
	}

	limit, err := intQuery(c, "limit", defaultReminderLimit)
	if err != nil {
		return query, err
	}
	switch {
	case limit == 0:
		limit = defaultReminderLimit
	case limit > maxReminderLimit:
		limit = maxReminderLimit
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return query, err
	}
	query.Limit = limit
	query.Offset = offset
	return query, nil
}
