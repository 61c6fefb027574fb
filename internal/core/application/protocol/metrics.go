package protocol

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type protocolMetrics struct {
	transitions   *prometheus.CounterVec
	stalls        *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	walletErrors  *prometheus.CounterVec
	sentMessages  *prometheus.CounterVec
	activeWorkers prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsRegistry *protocolMetrics
)

func defaultMetrics() *protocolMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &protocolMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "transitions_total",
				Help:      "Total persisted trade updates, by resulting stage.",
			}, []string{"stage"}),
			stalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "stalls_total",
				Help:      "Total stalled-trade conditions surfaced, by kind.",
			}, []string{"kind"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "rejected_messages_total",
				Help:      "Total peer messages discarded, by reason.",
			}, []string{"reason"}),
			walletErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "wallet_errors_total",
				Help:      "Total wallet call failures, by operation.",
			}, []string{"operation"}),
			sentMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "sent_messages_total",
				Help:      "Total peer messages sent, by type and result.",
			}, []string{"type", "result"}),
			activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "protocol",
				Name:      "active_workers",
				Help:      "Number of trades with a running event worker.",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.transitions,
			metricsRegistry.stalls,
			metricsRegistry.rejected,
			metricsRegistry.walletErrors,
			metricsRegistry.sentMessages,
			metricsRegistry.activeWorkers,
		)
	})
	return metricsRegistry
}
