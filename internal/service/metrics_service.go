package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-billing-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the
// ledger cache and billing operations.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	paymentsRecorded     prometheus.Counter
	paymentAmount        prometheus.Counter
	overpayments         prometheus.Counter
	allocationConflicts  prometheus.Counter
	workflowTransitions  *prometheus.CounterVec
	approvalDecisions    *prometheus.CounterVec
	remindersCreated     *prometheus.CounterVec
	notificationFailures prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	paymentsRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payments_recorded_total",
		Help: "Payments recorded against assessments",
	})

	paymentAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_payment_amount_total",
		Help: "Sum of recorded payment amounts",
	})

	overpayments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_overpayments_total",
		Help: "Payments that left an overpayment entry",
	})

	allocationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_allocation_conflicts_total",
		Help: "Allocations aborted by a concurrent balance update",
	})

	workflowTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow state machine transitions by outcome",
	}, []string{"outcome"})

	approvalDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_approval_decisions_total",
		Help: "Approval votes by decision",
	}, []string{"decision"})

	remindersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_reminders_created_total",
		Help: "Payment reminders appended by type",
	}, []string{"type"})

	notificationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_notification_failures_total",
		Help: "Notification deliveries that exhausted their retries",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		paymentsRecorded, paymentAmount, overpayments, allocationConflicts, workflowTransitions, approvalDecisions,
		remindersCreated, notificationFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHitRatio:        cacheHitRatio,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		paymentsRecorded:     paymentsRecorded,
		paymentAmount:        paymentAmount,
		overpayments:         overpayments,
		allocationConflicts:  allocationConflicts,
		workflowTransitions:  workflowTransitions,
		approvalDecisions:    approvalDecisions,
		remindersCreated:     remindersCreated,
		notificationFailures: notificationFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObservePayment counts a committed payment.
func (m *MetricsService) ObservePayment(amount, overpayment decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	m.paymentAmount.Add(amount.InexactFloat64())
	if overpayment.Sign() > 0 {
		m.overpayments.Inc()
	}
}

// ObserveAllocationConflict counts an allocation lost to a concurrent writer.
func (m *MetricsService) ObserveAllocationConflict() {
	if m == nil {
		return
	}
	m.allocationConflicts.Inc()
}

// ObserveTransition counts a workflow state machine step.
func (m *MetricsService) ObserveTransition(outcome TransitionOutcome) {
	if m == nil {
		return
	}
	m.workflowTransitions.WithLabelValues(string(outcome)).Inc()
}

// ObserveApprovalDecision counts an approval vote.
func (m *MetricsService) ObserveApprovalDecision(decision models.ApprovalStatus) {
	if m == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(string(decision)).Inc()
}

// ObserveReminder counts an appended reminder.
func (m *MetricsService) ObserveReminder(reminderType models.ReminderType) {
	if m == nil {
		return
	}
	m.remindersCreated.WithLabelValues(string(reminderType)).Inc()
}

// ObserveNotificationFailure counts a delivery that gave up.
func (m *MetricsService) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.notificationFailures.Inc()
}
