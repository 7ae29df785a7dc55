// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreMutations counts committed collection mutations.
	StoreMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevaconnect_store_mutations_total",
		Help: "Committed entity store mutations by collection and operation.",
	}, []string{"collection", "op"})

	// StoreWriteFailures counts collection writes rejected by the durable store.
	StoreWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevaconnect_store_write_failures_total",
		Help: "Entity store writes that failed to persist.",
	}, []string{"collection"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevaconnect_transitions_total",
		Help: "Committed status transitions.",
	}, []string{"entity", "from", "to"})

	AlertsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sevaconnect_alerts_active",
		Help: "Derived alerts currently active, by type.",
	}, []string{"type"})

	NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevaconnect_notifications_emitted_total",
		Help: "Admin notifications emitted, by type.",
	}, []string{"type"})

	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sevaconnect_push_clients",
		Help: "Connected push websocket clients.",
	})

	// OutboxPending is the number of remote writes waiting to be replayed.
	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sevaconnect_outbox_pending",
		Help: "Remote write-through operations queued.",
	})
)
