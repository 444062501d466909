package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(eventsTotal) }

var eventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_total",
		Help: "Lifecycle events by type and delivery result.",
	},
	[]string{"type", "result"}, // result: published, dropped, failed
)

func IncEvent(eventType, result string) {
	eventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}
