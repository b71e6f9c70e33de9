package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat server.
//
// Naming convention: namespace_subsystem_name
// - namespace: chat (application-level grouping)
// - subsystem: session, room, broadcast (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (commands processed, broadcasts dropped)
// - Histogram: Latency distributions (command processing time)

var (
	// ActiveConnections tracks the current number of active sessions (Gauge).
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active session connections",
	})

	// ActiveRooms tracks the current number of rooms known to the directory (Gauge).
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms in the directory",
	})

	// RoomParticipants tracks the number of unique users per room (GaugeVec).
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of unique users currently in each room",
	}, []string{"room"})

	// CommandsTotal tracks inbound commands processed by the session aggregator (CounterVec).
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "commands_total",
		Help:      "Total inbound commands processed",
	}, []string{"command", "status"})

	// CommandProcessingDuration tracks the time spent handling a command (HistogramVec).
	CommandProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chat",
		Subsystem: "session",
		Name:      "command_processing_seconds",
		Help:      "Time spent processing an inbound command",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"command"})

	// BroadcastEventsTotal tracks the outcome of each best-effort broadcast send (CounterVec).
	BroadcastEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "broadcast",
		Name:      "events_total",
		Help:      "Total broadcast sends, partitioned by outcome",
	}, []string{"room", "outcome"})

	// BroadcastLagTotal counts events dropped for a subscriber whose channel was full (CounterVec).
	BroadcastLagTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Subsystem: "broadcast",
		Name:      "lag_total",
		Help:      "Total events dropped for a subscriber that had fallen behind",
	}, []string{"room"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
