package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JoinsTotal counts successful room joins.
	JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "joins_total",
		Help:      "Number of successful room joins.",
	})

	// LeavesTotal counts leaves and disconnects that removed a membership.
	LeavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "leaves_total",
		Help:      "Number of participant removals (explicit leave or disconnect).",
	})

	// RelayedTotal counts forwarded handshake payloads by kind.
	RelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "relayed_messages_total",
		Help:      "Number of handshake payloads forwarded to a target.",
	}, []string{"kind"})

	// DroppedTotal counts messages dropped at the relay boundary by reason.
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "dropped_messages_total",
		Help:      "Number of messages dropped (unknown target, malformed, slow consumer).",
	}, []string{"reason"})

	// RoomsActive tracks the number of live rooms.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "rooms_active",
		Help:      "Number of rooms with at least one connected participant.",
	})

	// ConnectionsActive tracks currently connected signaling clients.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "classlink",
		Subsystem: "signaling",
		Name:      "connections_active",
		Help:      "Number of open signaling websocket connections.",
	})
)

// Drop reasons used with DroppedTotal.
const (
	ReasonUnknownTarget = "unknown_target"
	ReasonMalformed     = "malformed"
	ReasonSlowConsumer  = "slow_consumer"
	ReasonNotInRoom     = "not_in_room"
)
