package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Users with at least one live connection",
	})
	EventsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_pushed_total",
		Help: "Events handed to a connection send buffer",
	}, []string{"type"})
	EventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_dropped_total",
		Help: "Events dropped because the target had no connection or a full buffer",
	}, []string{"reason"})
	MessagesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_appended_total",
		Help: "Messages committed to the message log",
	})
	SinkPublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_sink_publish_failures_total",
		Help: "Best-effort event sink publishes that failed",
	})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, OnlineUsers, EventsPushed, EventsDropped, MessagesAppended, SinkPublishFailures)
	})
}

// Handler serves the default registry for Prometheus scraping.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
