package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// relay
	RelayExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapthat_relay_executions_total",
			Help: "Relay requests by path (tap, payment, bridge) and outcome",
		},
		[]string{"path", "outcome"},
	)

	RelayExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapthat_relay_execution_duration_seconds",
			Help:    "Time from relay request to confirmed transaction",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"chain_id"},
	)

	GasPolicySelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapthat_relay_gas_policy_total",
			Help: "Gas policy chosen for direct executions",
		},
		[]string{"policy"},
	)

	SubmitQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tapthat_relay_submit_queue_depth",
			Help: "Relay transactions waiting for the chain worker",
		},
		[]string{"chain_id"},
	)

	// bridge requests
	BridgeRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tapthat_bridge_requests_created_total",
		Help: "Bridge requests created from sentinel taps",
	})

	BridgeRequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapthat_bridge_requests_completed_total",
			Help: "Bridge request completion attempts by outcome",
		},
		[]string{"outcome"},
	)

	// push
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapthat_push_deliveries_total",
			Help: "Web push deliveries by outcome (sent, gone, failed)",
		},
		[]string{"outcome"},
	)

	// store
	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapthat_store_retries_total",
			Help: "Store operations retried after a transient failure",
		},
		[]string{"op"},
	)
)
