package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ambulance_tracking", Name: "sessions_active", Help: "Number of mounted tracking sessions"})
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "dispatches_total", Help: "Total confirmed dispatch requests"},
		[]string{"emergency_type"},
	)
	DispatchRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "dispatch_rejections_total", Help: "Dispatch attempts rejected before a session started"},
		[]string{"reason"},
	)
	ArrivalsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "arrivals_total", Help: "Total simulated arrivals"})
	MovementTicks = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "movement_ticks_total", Help: "Total movement simulation ticks"})
	TimeToArrival = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ambulance_tracking",
		Name:      "time_to_arrival_seconds",
		Help:      "Time between dispatch and simulated arrival",
		Buckets:   []float64{15, 30, 60, 90, 120, 180, 300, 600},
	})
	HookEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "hook_events_dropped_total", Help: "Session events dropped because sinks lagged"},
		[]string{"event"},
	)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "events_published_total", Help: "Dispatch lifecycle events published to kafka"},
		[]string{"event", "result"},
	)
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ambulance_tracking", Name: "ws_clients", Help: "Connected live map websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ambulance_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ambulance_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
