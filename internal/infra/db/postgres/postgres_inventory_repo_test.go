//go:build integration

package postgres

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"
)

func TestInventoryRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewInventoryRepo(testPool)

	t.Run("should let exactly one concurrent reserve win", func(t *testing.T) {
		cleanup(t)
		plan := seedPlan(t, 999)
		ids := seedItems(t, plan, 1)
		orders := make([]*model.Order, 8)
		for i := range orders {
			orders[i] = seedOrder(t, int64(i+1), plan)
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins []int64
		)
		now := time.Now()
		start := make(chan struct{})
		for _, o := range orders {
			wg.Add(1)
			go func(orderID int64) {
				defer wg.Done()
				<-start
				ok, err := repo.TryReserve(ctx, repository.NoTX, ids[0], orderID, now.Add(10*time.Minute), now)
				if err != nil {
					t.Errorf("TryReserve: %v", err)
					return
				}
				if ok {
					mu.Lock()
					wins = append(wins, orderID)
					mu.Unlock()
				}
			}(o.ID)
		}
		close(start)
		wg.Wait()

		if len(wins) != 1 {
			t.Fatalf("expected exactly one winner, got %v", wins)
		}
		held, err := repo.FindByHolder(ctx, repository.NoTX, wins[0])
		if err != nil || held.ID != ids[0] || held.Status != model.InventoryReserved {
			t.Errorf("unexpected holder state %+v (%v)", held, err)
		}
	})

	t.Run("should list only claimable matching candidates", func(t *testing.T) {
		cleanup(t)
		plan := seedPlan(t, 999)
		ids := seedItems(t, plan, 3)
		o := seedOrder(t, 1, plan)
		now := time.Now()
		_, _ = repo.TryReserve(ctx, repository.NoTX, ids[0], o.ID, now.Add(time.Hour), now)

		got, err := repo.ListCandidates(ctx, repository.NoTX, repository.CandidateQuery{
			PlanID: plan.ID, CountryID: plan.CountryID, CarrierID: plan.CarrierID,
			Now: now, ExcludeIDs: []int64{ids[1]}, Limit: 5,
		})
		if err != nil {
			t.Fatalf("ListCandidates: %v", err)
		}
		if len(got) != 1 || got[0].ID != ids[2] {
			t.Errorf("expected only item %d, got %v", ids[2], got)
		}

		other, _ := repo.ListCandidates(ctx, repository.NoTX, repository.CandidateQuery{
			PlanID: plan.ID + 100, CountryID: plan.CountryID, CarrierID: plan.CarrierID + 100, Now: now, Limit: 5,
		})
		if len(other) != 0 {
			t.Errorf("expected no candidates for another carrier, got %d", len(other))
		}
	})

	t.Run("should start each holder at its own point in the pool", func(t *testing.T) {
		cleanup(t)
		plan := seedPlan(t, 999)
		ids := seedItems(t, plan, 6)
		now := time.Now()

		for _, holder := range []int64{ids[0], ids[3], ids[len(ids)-1]} {
			got, err := repo.ListCandidates(ctx, repository.NoTX, repository.CandidateQuery{
				PlanID: plan.ID, CountryID: plan.CountryID, CarrierID: plan.CarrierID,
				Now: now, Limit: len(ids), HolderOrderID: holder,
			})
			if err != nil || len(got) != len(ids) {
				t.Fatalf("ListCandidates: %d items (%v)", len(got), err)
			}
			want := append([]int64(nil), ids...)
			sort.Slice(want, func(i, j int) bool {
				a, b := want[i]^holder, want[j]^holder
				if a != b {
					return a < b
				}
				return want[i] < want[j]
			})
			for i := range want {
				if got[i].ID != want[i] {
					t.Fatalf("holder %d: expected order %v, got item %d at %d", holder, want, got[i].ID, i)
				}
			}
			// id XOR holder is zero for the holder's own id.
			if got[0].ID != holder {
				t.Errorf("holder %d: expected to start at item %d, got %d", holder, holder, got[0].ID)
			}
		}
	})

	t.Run("should assign, refuse release and retire", func(t *testing.T) {
		cleanup(t)
		plan := seedPlan(t, 999)
		ids := seedItems(t, plan, 1)
		o := seedOrder(t, 1, plan)
		now := time.Now()

		if ok, _ := repo.TryReserve(ctx, repository.NoTX, ids[0], o.ID, now.Add(time.Minute), now); !ok {
			t.Fatal("reserve failed")
		}
		if ok, _ := repo.Assign(ctx, repository.NoTX, ids[0], o.ID+1, now); ok {
			t.Error("assign must require the holder")
		}
		if ok, _ := repo.Assign(ctx, repository.NoTX, ids[0], o.ID, now); !ok {
			t.Fatal("assign failed")
		}
		if ok, _ := repo.Release(ctx, repository.NoTX, ids[0]); ok {
			t.Error("assigned items must not be released")
		}
		if n, _ := repo.ReleaseHeldBy(ctx, repository.NoTX, o.ID); n != 0 {
			t.Errorf("assigned items must not be released, got %d", n)
		}
		if ok, _ := repo.Retire(ctx, repository.NoTX, ids[0]); !ok {
			t.Error("retire failed")
		}
		counts, err := repo.CountByStatus(ctx, repository.NoTX)
		if err != nil || counts[model.InventoryRetired] != 1 {
			t.Errorf("unexpected counts %v (%v)", counts, err)
		}
	})

	t.Run("should reclaim lapsed reservations only", func(t *testing.T) {
		cleanup(t)
		plan := seedPlan(t, 999)
		ids := seedItems(t, plan, 2)
		a := seedOrder(t, 1, plan)
		b := seedOrder(t, 2, plan)
		now := time.Now()
		_, _ = repo.TryReserve(ctx, repository.NoTX, ids[0], a.ID, now.Add(-time.Second), now.Add(-time.Minute))
		_, _ = repo.TryReserve(ctx, repository.NoTX, ids[1], b.ID, now.Add(time.Hour), now)

		n, err := repo.ReclaimExpired(ctx, repository.NoTX, now)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 reclaimed, got %d (%v)", n, err)
		}
		it, _ := repo.FindByID(ctx, repository.NoTX, ids[0])
		if it.Status != model.InventoryAvailable || it.HolderOrderID != nil {
			t.Errorf("unexpected reclaimed item %+v", it)
		}
	})
}
