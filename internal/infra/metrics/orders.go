package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ordersTotal) }

var ordersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orders_transitions_total",
		Help: "Order status transitions, labeled by the status reached.",
	},
	[]string{"status"}, // created, paid, failed, refunded
)

func IncOrder(status string) {
	ordersTotal.WithLabelValues(norm(status)).Inc()
}
