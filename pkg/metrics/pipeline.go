package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Operations tracked by the order pipeline.
const (
	OpOrderCreate      = "order_create"
	OpPaymentComplete  = "payment_complete"
	OpStoreOrderUpdate = "store_order_update"
	OpRefund           = "refund"
	OpSettle           = "settle"
	OpWithdrawal       = "withdrawal"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// PipelineMetrics records outcomes and money flow of the order pipeline.
type PipelineMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	amount   *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_operation_duration_seconds",
		Help:    "Duration of order pipeline operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_operation_total",
		Help: "Order pipeline operations by outcome.",
	}, []string{"operation", "outcome"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_amount_total",
		Help: "Money moved by successful pipeline operations.",
	}, []string{"operation"})
	reg.MustRegister(duration, outcomes, amount)
	return &PipelineMetrics{
		duration: duration,
		outcomes: outcomes,
		amount:   amount,
	}
}

// Observe records one finished operation. outcome should be one of the
// Outcome constants.
func (p *PipelineMetrics) Observe(operation, outcome string, took time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	p.duration.WithLabelValues(op).Observe(took.Seconds())
	p.outcomes.WithLabelValues(op, normalizeLabel(outcome)).Inc()
}

// AddAmount accumulates the money moved by a successful operation.
func (p *PipelineMetrics) AddAmount(operation string, amount decimal.Decimal) {
	if p == nil || p.amount == nil || !amount.IsPositive() {
		return
	}
	p.amount.WithLabelValues(normalizeLabel(operation)).Add(amount.InexactFloat64())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
