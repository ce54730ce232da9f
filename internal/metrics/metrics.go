// Package metrics provides Prometheus instrumentation for the Harbor chat
// hub. It exposes gauges for connection, room, and presence counts, counters
// for message and notification throughput, and histograms for fanout latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harbor_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts the total number of chat messages processed,
	// labeled by scope: "room" or "private".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"scope"}) // scope = "room", "private"

	// NotificationsTotal counts notifications by outcome: "stored" for every
	// persisted record, "pushed" for the subset also delivered live.
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harbor_notifications_total",
		Help: "Total number of notifications processed",
	}, []string{"outcome"}) // outcome = "stored", "pushed"

	// FanoutLatency records persist-then-broadcast latency in seconds.
	FanoutLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harbor_fanout_latency_seconds",
		Help:    "Message persist-then-broadcast latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harbor_active_rooms",
		Help: "Current number of live rooms",
	})

	// OnlineUsers tracks the current number of distinct online users.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "harbor_online_users",
		Help: "Current number of distinct online users",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		NotificationsTotal,
		FanoutLatency,
		ActiveRooms,
		OnlineUsers,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
