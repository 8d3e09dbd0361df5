package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every mounted router.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ordermesh",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// JobsClaimedTotal counts jobs claimed by workers, by job type.
var JobsClaimedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "jobs",
		Name:      "claimed_total",
		Help:      "Total number of jobs claimed by workers.",
	},
	[]string{"type"},
)

// JobsCompletedTotal counts jobs that reached a terminal state, by type and outcome.
var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Total number of jobs reaching a terminal state.",
	},
	[]string{"type", "outcome"},
)

// JobRetriesTotal counts retry transitions, by type.
var JobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "jobs",
		Name:      "retries_total",
		Help:      "Total number of job retry transitions.",
	},
	[]string{"type"},
)

// JobHandlerDuration tracks handler execution time, by type.
var JobHandlerDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ordermesh",
		Subsystem: "jobs",
		Name:      "handler_duration_seconds",
		Help:      "Job handler execution duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"type"},
)

// GatewayCallsTotal counts outbound platform calls, by platform and outcome.
var GatewayCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Total number of outbound platform gateway calls.",
	},
	[]string{"platform", "outcome"},
)

// GatewayRateLimitedTotal counts calls rejected locally before reaching the network.
var GatewayRateLimitedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "gateway",
		Name:      "rate_limited_total",
		Help:      "Total number of calls rejected by the local token bucket.",
	},
	[]string{"platform", "bucket"},
)

// GatewayQueryCost observes the estimated and actual cost of outbound queries.
var GatewayQueryCost = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ordermesh",
		Subsystem: "gateway",
		Name:      "query_cost",
		Help:      "Estimated or actual cost points consumed per call.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"platform", "kind"},
)

// WebhooksReceivedTotal counts inbound webhook deliveries, by platform and outcome.
var WebhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "webhooks",
		Name:      "received_total",
		Help:      "Total number of inbound webhook deliveries.",
	},
	[]string{"platform", "outcome"},
)

// ReconciliationRunsTotal counts completed reconciliation passes.
var ReconciliationRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Total number of reconciliation passes completed.",
	},
	[]string{"platform"},
)

// ReconciliationDiscrepanciesTotal counts discrepancies found, by kind and severity.
var ReconciliationDiscrepanciesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "reconcile",
		Name:      "discrepancies_total",
		Help:      "Total number of discrepancies recorded during reconciliation.",
	},
	[]string{"kind", "severity"},
)

// BudgetFreezesTotal counts budget circuit breaker trips.
var BudgetFreezesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "budgets",
		Name:      "freezes_total",
		Help:      "Total number of budgets tripped into a frozen state.",
	},
	[]string{"type"},
)

// NotificationsTotal counts outbound Slack notifications, by kind.
var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ordermesh",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of notifications sent, by kind.",
	},
	[]string{"kind"},
)

// All returns every ordermesh-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsClaimedTotal,
		JobsCompletedTotal,
		JobRetriesTotal,
		JobHandlerDuration,
		GatewayCallsTotal,
		GatewayRateLimitedTotal,
		GatewayQueryCost,
		WebhooksReceivedTotal,
		ReconciliationRunsTotal,
		ReconciliationDiscrepanciesTotal,
		BudgetFreezesTotal,
		NotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed in.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
