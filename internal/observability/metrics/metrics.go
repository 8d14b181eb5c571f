package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "rent_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	instructionTotal   *prometheus.CounterVec
	instructionLatency *prometheus.HistogramVec

	escrowHeld     prometheus.Gauge
	fundsMoved     *prometheus.CounterVec
	agreementState *prometheus.CounterVec

	outboxPublishTotal   *prometheus.CounterVec
	outboxPublishLatency *prometheus.HistogramVec

	statementExportTotal   *prometheus.CounterVec
	statementExportLatency *prometheus.HistogramVec
)

// Init registers metrics on the default registry. When db is set, outbox
// gauges backed by SQL counts are registered too and the escrow gauge is
// seeded from the custody balances in the store.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		instructionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "instruction_total",
				Help: "Total agreement instructions by instruction and result code",
			},
			[]string{"instruction", "result"},
		)
		instructionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "instruction_latency_seconds",
				Help:    "Agreement instruction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"instruction", "result"},
		)

		escrowHeld = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "escrow_held_units",
				Help: "Security deposit units held in agreement custody accounts",
			},
		)
		fundsMoved = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "funds_moved_units_total",
				Help: "Units moved by escrow transfers by kind",
			},
			[]string{"kind"},
		)
		agreementState = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "agreement_transitions_total",
				Help: "Agreement status transitions by target status",
			},
			[]string{"status"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Total outbox publish operations by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		statementExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement export operations by format and result",
			},
			[]string{"format", "result"},
		)
		statementExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			instructionTotal,
			instructionLatency,
			escrowHeld,
			fundsMoved,
			agreementState,
			outboxPublishTotal,
			outboxPublishLatency,
			statementExportTotal,
			statementExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
			escrowHeld.Set(queryEscrowHeld(db, logger))
		}
	})
}

// ObserveInstruction records instruction latency and result code.
func ObserveInstruction(instruction, result string, duration time.Duration) {
	if instruction == "" {
		instruction = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if instructionTotal != nil {
		instructionTotal.WithLabelValues(instruction, result).Inc()
	}
	if instructionLatency != nil {
		instructionLatency.WithLabelValues(instruction, result).Observe(duration.Seconds())
	}
}

// AddEscrowHeld moves the custody gauge by delta units.
func AddEscrowHeld(delta float64) {
	if escrowHeld != nil {
		escrowHeld.Add(delta)
	}
}

// AddFundsMoved counts units moved by a transfer kind.
func AddFundsMoved(kind string, amount uint64) {
	if kind == "" {
		kind = "unknown"
	}
	if fundsMoved != nil && amount > 0 {
		fundsMoved.WithLabelValues(kind).Add(float64(amount))
	}
}

// IncTransition counts a status transition.
func IncTransition(status string) {
	if status == "" {
		status = "unknown"
	}
	if agreementState != nil {
		agreementState.WithLabelValues(status).Inc()
	}
}

// ObserveOutboxPublish records outbox publish latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveStatementExport records export latency and result.
func ObserveStatementExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if statementExportTotal != nil {
		statementExportTotal.WithLabelValues(format, result).Inc()
	}
	if statementExportLatency != nil {
		statementExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
