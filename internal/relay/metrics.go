package relay

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics lives on its own registry so several relays can share a process.
type Metrics struct {
	registry      *prometheus.Registry
	connections   prometheus.Gauge
	eventsRelayed *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	requests      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchmate",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections on this instance.",
		}),
		eventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchmate",
			Subsystem: "relay",
			Name:      "events_published_total",
			Help:      "Realtime events published, by frame type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchmate",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames not handled or not delivered, by reason.",
		}, []string{"reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchmate",
			Subsystem: "relay",
			Name:      "http_requests_total",
			Help:      "REST requests, by route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(m.connections, m.eventsRelayed, m.framesDropped, m.requests)
	return m
}

// WatchRooms exports the live room count of hub.
func (m *Metrics) WatchRooms(hub *Hub) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "matchmate",
		Subsystem: "relay",
		Name:      "rooms",
		Help:      "Rooms with at least one member on this instance.",
	}, func() float64 { return float64(hub.RoomCount()) }))
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
