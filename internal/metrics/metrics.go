package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	ActivePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facestream_active_players",
		Help: "Number of players registered with the HTTP API",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facestream_active_sessions",
		Help: "Number of animation streams currently holding a transport",
	})
)

// Counters
var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facestream_sessions_started_total",
		Help: "Total animation streams opened",
	})
	SessionOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facestream_session_outcomes_total",
		Help: "Total finished sessions by outcome (completed, cancelled, or the failure kind)",
	}, []string{"outcome"})
	FramesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facestream_frames_received_total",
		Help: "Total animation frames accepted across all sessions",
	})
	WarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facestream_service_warnings_total",
		Help: "Total INFO/WARNING statuses and downgraded errors reported by the service",
	})
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facestream_cache_lookups_total",
		Help: "Animation cache lookups by result (hit, miss, current)",
	}, []string{"result"})
	PlayersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facestream_players_rejected_total",
		Help: "Players rejected due to capacity limit",
	})
	MockStreamsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facestream_mock_streams_total",
		Help: "Total streams served by the mock animation service",
	})
)

// Histograms
var (
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facestream_request_duration_ms",
		Help:    "Animation request duration in milliseconds by stage",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
	}, []string{"stage"})
)
