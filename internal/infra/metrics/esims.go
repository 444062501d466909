package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		esimActivationsTotal,
		esimsExpiredTotal,
	)
}

var (
	esimActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esim_activations_total",
			Help: "Activation calls by outcome (activated/replayed/failed/transient).",
		},
		[]string{"outcome"},
	)

	esimsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esims_expired_total",
			Help: "Active eSIM profiles moved to expired by the expiry sweep.",
		},
	)
)

func IncActivation(outcome string) {
	esimActivationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncEsimsExpired(n int) {
	if n > 0 {
		esimsExpiredTotal.Add(float64(n))
	}
}
