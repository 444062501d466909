//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/usecase"
)

const (
	testCountryID = int64(34)
	testCarrierID = int64(7)
)

// fixture wires every use case over in-memory repositories.
type fixture struct {
	plans     *memPlanRepo
	orders    *memOrderRepo
	payments  *memPaymentRepo
	inventory *memInventoryRepo
	esims     *memEsimRepo
	events    *recordingPublisher
	gateway   *MockPaymentGateway
	locker    *memLocker
	tm        *MockTxManager

	snapshotter usecase.PlanSnapshotter
	allocator   usecase.InventoryAllocator
	orderUC     usecase.OrderUseCase
	paymentUC   usecase.PaymentUseCase
	esimUC      usecase.EsimUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := newMemOrderRepo()
	f := &fixture{
		plans:     newMemPlanRepo(),
		orders:    orders,
		payments:  newMemPaymentRepo(orders),
		inventory: newMemInventoryRepo(),
		esims:     newMemEsimRepo(),
		events:    &recordingPublisher{},
		gateway:   &MockPaymentGateway{},
		locker:    newMemLocker(),
		tm:        &MockTxManager{},
	}
	logger := newTestLogger()
	f.snapshotter = usecase.NewPlanSnapshotter(f.plans, logger)
	f.allocator = usecase.NewInventoryAllocator(f.inventory, usecase.AllocatorOptions{
		ReservationTTL: 10 * time.Minute,
		CandidateBatch: 2,
		MaxRounds:      3,
	}, logger)
	f.orderUC = usecase.NewOrderUseCase(f.orders, f.payments, f.esims, f.snapshotter, f.allocator, f.tm, f.events,
		usecase.OrderOptions{DefaultCurrency: "USD", Currencies: []string{"USD", "EUR"}}, logger)
	f.paymentUC = usecase.NewPaymentUseCase(f.payments, f.orders, f.orderUC, "MOCK", f.locker, logger, f.gateway)
	f.esimUC = usecase.NewEsimUseCase(f.orders, f.esims, f.allocator, f.tm, f.events, 10*time.Minute, logger)
	return f
}

func (f *fixture) seedPlan(t *testing.T, price int64) *model.Plan {
	t.Helper()
	gb := 5.0
	p := &model.Plan{
		Name:            "Spain 5GB",
		Description:     "5GB for 30 days",
		CountryID:       testCountryID,
		CountryName:     "Spain",
		CountryISO2:     "ES",
		CarrierID:       testCarrierID,
		CarrierName:     "Movistar",
		DataGB:          &gb,
		DurationDays:    30,
		PriceMinorUnits: price,
		Currency:        "USD",
		IsActive:        true,
	}
	if err := f.plans.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

// seedItems adds n pooled items matching the test carrier and country.
func (f *fixture) seedItems(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		it := &model.InventoryItem{
			CountryID:   testCountryID,
			CarrierID:   testCarrierID,
			ICCID:       "89340000000000000" + string(rune('0'+i%10)),
			SMDPAddress: "smdp.example.com",
			Status:      model.InventoryAvailable,
			CreatedAt:   time.Now(),
		}
		if err := f.inventory.Insert(context.Background(), nil, it); err != nil {
			t.Fatalf("seed item: %v", err)
		}
		ids = append(ids, it.ID)
	}
	return ids
}

// paidOrder creates an order and pays it through the mock gateway.
func (f *fixture) paidOrder(t *testing.T, userID, planID int64) *model.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orderUC.CreateOrder(ctx, userID, planID, "USD", "")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := f.paymentUC.CreatePayment(ctx, userID, o.ID, "MOCK", ""); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return o
}
