package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	agreement "trusted-properties/internal/agreement/domain"
)

const escrowHeldQuery = "SELECT COALESCE(SUM(balance), 0)::float8 FROM ledger_accounts WHERE program = $1"

func registerDBMetrics(db *sql.DB, logger zerolog.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "event_outbox_pending",
			Help: "Pending outbox records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "event_dlq_count",
			Help: "Dead letter queue records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM dead_letter_events")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "ledger_accounts",
			Help: "Ledger accounts known to the store",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM ledger_accounts")
		},
	))
}

func queryCount(db *sql.DB, logger zerolog.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn().Err(err).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// queryEscrowHeld sums the balances of agreement custody accounts. It seeds
// the escrow gauge so a restarted process reports what the store holds.
func queryEscrowHeld(db *sql.DB, logger zerolog.Logger) float64 {
	if db == nil {
		return 0
	}
	var held float64
	if err := db.QueryRow(escrowHeldQuery, agreement.ProgramID).Scan(&held); err != nil {
		logger.Warn().Err(err).Msg("escrow held query failed")
		return 0
	}
	return held
}
