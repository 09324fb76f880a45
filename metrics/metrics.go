package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveRooms tracks notes that currently have at least one viewer.
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notes_active_rooms",
			Help: "Number of notes with at least one connected participant",
		},
	)

	// ActiveParticipants tracks connections attached to a room.
	ActiveParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notes_active_participants",
			Help: "Number of connections attached to a note room",
		},
	)

	// Connections tracks live transport sessions, bound or not.
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notes_connections",
			Help: "Number of live collaboration connections",
		},
	)

	// Joins counts join_note outcomes (ok|not_found|error).
	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_joins_total",
			Help: "Total number of join_note events by result",
		},
		[]string{"result"},
	)

	// Updates counts note_update outcomes (ok|stale|error).
	Updates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_updates_total",
			Help: "Total number of note_update events by result",
		},
		[]string{"result"},
	)

	// StoreLatency measures note store calls made by the collaboration layer.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notes_store_latency_seconds",
			Help:    "Note store call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
