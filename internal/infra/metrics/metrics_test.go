//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	MustRegister()
	MustRegister() // second call must not panic

	before := testutil.ToFloat64(inventoryReservationsTotal.WithLabelValues("won"))
	IncReservation(" WON ")
	if got := testutil.ToFloat64(inventoryReservationsTotal.WithLabelValues("won")); got != before+1 {
		t.Errorf("expected won counter to increase by 1, got %v -> %v", before, got)
	}

	AddReservationsReclaimed(0)
	AddReservationsReclaimed(-3)
	if got := testutil.ToFloat64(inventoryReclaimedTotal); got != 0 {
		t.Errorf("non-positive reclaim counts must be ignored, got %v", got)
	}

	SetDBPoolStats(10, 4, 6)
	if got := testutil.ToFloat64(dbPoolStats.WithLabelValues("in_use")); got != 6 {
		t.Errorf("expected in_use 6, got %v", got)
	}
}
