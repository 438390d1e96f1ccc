package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the chain pipelines and the shared registry, partitioned by
// chain key where it makes sense.

var (
	BlocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_monitor",
		Name:      "blocks_processed_total",
		Help:      "Total blocks fully extracted per chain",
	}, []string{"chain"})

	CurrentBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "account_monitor",
		Name:      "current_block",
		Help:      "Latest observed head block per chain",
	}, []string{"chain"})

	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_monitor",
		Name:      "rpc_requests_total",
		Help:      "Total JSON-RPC requests issued, by method",
	}, []string{"chain", "method"})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_monitor",
		Name:      "rpc_errors_total",
		Help:      "Total failed JSON-RPC attempts, each retried attempt included",
	}, []string{"chain"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_monitor",
		Name:      "notifications_sent_total",
		Help:      "Total notifications delivered (or logged when disabled)",
	}, []string{"chain"})

	DecodeWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "account_monitor",
		Name:      "decode_warnings_total",
		Help:      "Total malformed logs skipped by the decoder",
	}, []string{"chain"})

	RegistrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "account_monitor",
		Name:      "registry_size",
		Help:      "Count of watched accounts",
	})
)
