//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"
)

func seedPlan(t *testing.T, price int64) *model.Plan {
	t.Helper()
	ctx := context.Background()
	plans := NewPostgresPlanRepo(testPool)

	countryID, err := plans.UpsertCountry(ctx, repository.NoTX, "es", "Spain")
	if err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}
	carrierID, err := plans.UpsertCarrier(ctx, repository.NoTX, "Movistar")
	if err != nil {
		t.Fatalf("UpsertCarrier: %v", err)
	}
	gb := 5.0
	p := &model.Plan{
		Name:            "Spain 5GB",
		Description:     "5GB for 30 days",
		CountryID:       countryID,
		CarrierID:       carrierID,
		DataGB:          &gb,
		DurationDays:    30,
		PriceMinorUnits: price,
		Currency:        "USD",
		IsActive:        true,
	}
	if err := plans.Save(ctx, repository.NoTX, p); err != nil {
		t.Fatalf("Save plan: %v", err)
	}
	saved, err := plans.FindByID(ctx, repository.NoTX, p.ID)
	if err != nil {
		t.Fatalf("FindByID plan: %v", err)
	}
	return saved
}

func seedOrder(t *testing.T, userID int64, plan *model.Plan) *model.Order {
	t.Helper()
	o := &model.Order{
		UserID:           userID,
		PlanID:           plan.ID,
		PlanSnapshot:     model.NewPlanSnapshot(plan),
		Status:           model.OrderStatusCreated,
		Currency:         plan.Currency,
		AmountMinorUnits: plan.PriceMinorUnits,
		CreatedAt:        time.Now(),
	}
	if err := NewOrderRepo(testPool).Create(context.Background(), repository.NoTX, o); err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return o
}

func seedItems(t *testing.T, plan *model.Plan, n int) []int64 {
	t.Helper()
	repo := NewInventoryRepo(testPool)
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		it := &model.InventoryItem{
			CountryID:   plan.CountryID,
			CarrierID:   plan.CarrierID,
			ICCID:       fmt.Sprintf("8934%015d", time.Now().UnixNano()%1e15+int64(i)),
			SMDPAddress: "smdp.example.com",
		}
		if err := repo.Insert(context.Background(), repository.NoTX, it); err != nil {
			t.Fatalf("Insert item: %v", err)
		}
		ids = append(ids, it.ID)
	}
	return ids
}
