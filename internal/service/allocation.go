package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
	"github.com/noah-isme/sma-billing-api/pkg/money"
)

// OverpaymentPolicy decides what happens to money left after every eligible
// term is settled. Neither policy creates a credit balance.
type OverpaymentPolicy string

const (
	// OverpaymentRecord logs the leftover as an overpayment breakdown entry and
	// refuses payments when nothing is outstanding from the start term onward.
	OverpaymentRecord OverpaymentPolicy = "record"
	// OverpaymentAccept also accepts payments against a settled ledger, logging
	// the whole amount as overpayment.
	OverpaymentAccept OverpaymentPolicy = "accept"
)

// ParseOverpaymentPolicy maps configuration input to a policy, defaulting to record.
func ParseOverpaymentPolicy(raw string) OverpaymentPolicy {
	if OverpaymentPolicy(strings.ToLower(strings.TrimSpace(raw))) == OverpaymentAccept {
		return OverpaymentAccept
	}
	return OverpaymentRecord
}

// Allocation is the outcome of distributing one payment across terms.
type Allocation struct {
	// Terms holds every term in term order after the allocation.
	Terms []models.PaymentTerm `json:"terms"`
	// Touched indexes into Terms for terms whose balance changed.
	Touched     []int                      `json:"-"`
	Breakdown   models.AllocationBreakdown `json:"breakdown"`
	Applied     decimal.Decimal            `json:"applied"`
	Overpayment decimal.Decimal            `json:"overpayment"`
}

// TouchedTerms returns the terms whose balance changed.
func (a *Allocation) TouchedTerms() []*models.PaymentTerm {
	out := make([]*models.PaymentTerm, 0, len(a.Touched))
	for _, idx := range a.Touched {
		out = append(out, &a.Terms[idx])
	}
	return out
}

// AllocatePayment walks terms in ascending term order starting at the target
// term (or the first term with a balance) and applies amount until it runs
// out. Terms ordered before the start term are never modified. The input
// slice is left untouched.
func AllocatePayment(terms []models.PaymentTerm, amount decimal.Decimal, targetTermID *int64, policy OverpaymentPolicy) (*Allocation, error) {
	if amount.Sign() <= 0 || !money.HasValidPrecision(amount) {
		return nil, appErrors.ErrInvalidAmount
	}

	ordered := make([]models.PaymentTerm, len(terms))
	copy(ordered, terms)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].TermOrder < ordered[j].TermOrder })

	start := -1
	if targetTermID != nil {
		for i := range ordered {
			if ordered[i].ID == *targetTermID {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, appErrors.ErrTermNotFound
		}
	} else {
		for i := range ordered {
			if ordered[i].HasBalance() {
				start = i
				break
			}
		}
	}

	outstanding := false
	if start >= 0 {
		for i := start; i < len(ordered); i++ {
			if ordered[i].HasBalance() {
				outstanding = true
				break
			}
		}
	}
	if !outstanding && policy != OverpaymentAccept {
		return nil, appErrors.ErrNoOutstandingBalance
	}

	result := &Allocation{
		Terms:       ordered,
		Breakdown:   models.AllocationBreakdown{},
		Applied:     decimal.Zero,
		Overpayment: decimal.Zero,
	}
	remaining := money.Normalize(amount)
	if outstanding {
		for i := start; i < len(ordered) && remaining.Sign() > 0; i++ {
			term := &ordered[i]
			if !term.HasBalance() {
				continue
			}
			applied := term.Apply(remaining)
			remaining = remaining.Sub(applied)
			result.Applied = result.Applied.Add(applied)
			result.Touched = append(result.Touched, i)
			result.Breakdown = append(result.Breakdown, models.AllocationEntry{
				Kind:          models.AllocationKindTerm,
				TermID:        term.ID,
				TermName:      term.TermName,
				AmountApplied: applied,
				NewBalance:    term.Balance,
				Status:        term.Status,
			})
		}
	}

	if remaining.Sign() > 0 {
		result.Overpayment = remaining
		result.Breakdown = append(result.Breakdown, models.AllocationEntry{
			Kind:          models.AllocationKindOverpayment,
			AmountApplied: remaining,
			NewBalance:    decimal.Zero,
		})
	}
	return result, nil
}
