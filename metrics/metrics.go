package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes
var (
	SettlementsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_settlements_initiated_total",
			Help: "Settlement initiations by transaction type and outcome",
		},
		[]string{"type", "outcome"},
	)

	SettlementsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_settlements_confirmed_total",
			Help: "Settlement confirmations by outcome",
		},
		[]string{"outcome"},
	)

	// SettlementAlerts counts conditions that need an operator, such as a lost sale race.
	SettlementAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_settlement_alerts_total",
			Help: "Settlement conditions requiring manual reconciliation",
		},
		[]string{"alert"},
	)

	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_sweep_transactions_total",
			Help: "Stale pending transactions re-confirmed by the sweeper, by outcome",
		},
		[]string{"outcome"},
	)
)

// GatewayLatency records processor call latency by operation and outcome.
var GatewayLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "marketflow_gateway_request_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op", "outcome"},
)

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_events_published_total",
			Help: "Settlement events delivered per sink and result",
		},
		[]string{"sink", "result"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketflow_events_dropped_total",
			Help: "Settlement events dropped because the dispatch queue was full",
		},
	)
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketflow_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// Database connection pool metrics
var (
	DBTotalConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketflow_db_total_connections",
		Help: "Number of open connections in the DB pool",
	})
	DBIdleConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketflow_db_idle_connections",
		Help: "Number of idle connections in the DB pool",
	})
	DBInUseConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketflow_db_in_use_connections",
		Help: "Number of in-use connections in the DB pool",
	})
)

func init() {
	prometheus.MustRegister(SettlementsInitiated, SettlementsConfirmed, SettlementAlerts, SweepRuns)
	prometheus.MustRegister(GatewayLatency, EventsPublished, EventsDropped)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(DBTotalConns, DBIdleConns, DBInUseConns)
}

// RecordPoolStats copies a pgx pool snapshot into the DB gauges.
func RecordPoolStats(s *pgxpool.Stat) {
	DBTotalConns.Set(float64(s.TotalConns()))
	DBIdleConns.Set(float64(s.IdleConns()))
	DBInUseConns.Set(float64(s.AcquiredConns()))
}
