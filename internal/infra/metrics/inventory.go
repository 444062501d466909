package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		inventoryReservationsTotal,
		inventoryReclaimedTotal,
		inventoryItems,
	)
}

var (
	inventoryReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservation_attempts_total",
			Help: "Reservation attempts by outcome. 'lost' counts conditional writes beaten by a concurrent order.",
		},
		[]string{"outcome"}, // won, lost, renewed, exhausted
	)

	inventoryReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_reservations_reclaimed_total",
			Help: "Expired reservations returned to the pool by the sweeper.",
		},
	)

	inventoryItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inventory_items",
			Help: "Inventory items by status.",
		},
		[]string{"status"},
	)
)

func IncReservation(outcome string) {
	inventoryReservationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddReservationsReclaimed(n int64) {
	if n > 0 {
		inventoryReclaimedTotal.Add(float64(n))
	}
}

func SetInventoryItems(status string, n int) {
	inventoryItems.WithLabelValues(norm(status)).Set(float64(n))
}
