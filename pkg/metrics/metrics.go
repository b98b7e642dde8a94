// Package metrics defines the service's Prometheus collectors. Collectors
// register on the default registry and are served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by route and status
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// DatabaseConnectionsGauge tracks pool state by connection state
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})

	// ScanCyclesTotal counts deposit scan cycles by network and outcome
	ScanCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposit_scan_cycles_total",
		Help: "Deposit scan cycles executed",
	}, []string{"network", "status"})

	// DepositsCreditedTotal counts credited deposits by network
	DepositsCreditedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposits_credited_total",
		Help: "Deposits detected and credited",
	}, []string{"network"})

	// SweepsTotal counts sweep attempts by network and outcome
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeps_total",
		Help: "Wallet sweeps executed",
	}, []string{"network", "status"})

	// WithdrawalsTotal counts withdrawal requests by network and outcome
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_total",
		Help: "Withdrawal requests processed",
	}, []string{"network", "status"})

	// OtcOrdersTotal counts OTC orders by type and final status
	OtcOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otc_orders_total",
		Help: "OTC orders processed",
	}, []string{"type", "status"})
)
