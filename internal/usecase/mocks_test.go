// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/adapter"
	"esim-fulfillment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Transactions
// =============================

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Plans
// =============================

type memPlanRepo struct {
	mu    sync.RWMutex
	plans map[int64]*model.Plan
	seq   int64
}

func newMemPlanRepo() *memPlanRepo { return &memPlanRepo{plans: map[int64]*model.Plan{}} }

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	if p.DataGB != nil {
		gb := *p.DataGB
		cp.DataGB = &gb
	}
	return &cp, nil
}

func (m *memPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPlanRepo) UpsertCountry(ctx context.Context, tx repository.Tx, iso2, name string) (int64, error) {
	return 1, nil
}

func (m *memPlanRepo) UpsertCarrier(ctx context.Context, tx repository.Tx, name string) (int64, error) {
	return 1, nil
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.seq++
		p.ID = m.seq
	}
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

// =============================
// Orders
// =============================

type memOrderRepo struct {
	mu        sync.RWMutex
	orders    map[int64]*model.Order
	seq       int64
	createErr error
	// markPaidErr fails the next MarkPaidIfCreated once.
	markPaidErr error
}

func newMemOrderRepo() *memOrderRepo { return &memOrderRepo{orders: map[int64]*model.Order{}} }

func cloneOrder(o *model.Order) *model.Order {
	cp := *o
	cp.PlanSnapshot = o.PlanSnapshot.Clone()
	cp.EsimProfile = nil
	return &cp
}

func (m *memOrderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.IdempotencyKey != nil {
		for _, ex := range m.orders {
			if ex.IdempotencyKey != nil && *ex.IdempotencyKey == *o.IdempotencyKey {
				return domain.ErrAlreadyExists
			}
		}
	}
	m.seq++
	o.ID = m.seq
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	// Distinct timestamps keep newest-first ordering deterministic.
	o.CreatedAt = o.CreatedAt.Add(time.Duration(m.seq) * time.Microsecond)
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrderRepo) FindByIdempotencyKey(ctx context.Context, tx repository.Tx, key string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrderRepo) transition(id int64, from, to model.OrderStatus, mut func(o *model.Order)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if mut != nil {
		mut(o)
	}
	return true, nil
}

func (m *memOrderRepo) MarkPaidIfCreated(ctx context.Context, tx repository.Tx, id, paymentID int64) (bool, error) {
	m.mu.Lock()
	err := m.markPaidErr
	m.markPaidErr = nil
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return m.transition(id, model.OrderStatusCreated, model.OrderStatusPaid, func(o *model.Order) { o.PaidPaymentID = &paymentID })
}

func (m *memOrderRepo) MarkFailedIfCreated(ctx context.Context, tx repository.Tx, id int64, reason string) (bool, error) {
	return m.transition(id, model.OrderStatusCreated, model.OrderStatusFailed, func(o *model.Order) { o.FailureReason = &reason })
}

func (m *memOrderRepo) MarkRefundedIfPaid(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	return m.transition(id, model.OrderStatusPaid, model.OrderStatusRefunded, nil)
}

func (m *memOrderRepo) status(id int64) model.OrderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id].Status
}

// =============================
// Payments
// =============================

type memPaymentRepo struct {
	mu       sync.RWMutex
	payments map[int64]*model.Payment
	seq      int64
	orders   *memOrderRepo
}

func newMemPaymentRepo(orders *memOrderRepo) *memPaymentRepo {
	return &memPaymentRepo{payments: map[int64]*model.Payment{}, orders: orders}
}

func (m *memPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = m.seq
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByIntentID(ctx context.Context, tx repository.Tx, provider model.PaymentProvider, intentID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.Provider == provider && p.IntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) ListByOrder(ctx context.Context, tx repository.Tx, orderID int64) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memPaymentRepo) ListUnsettled(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Payment
	for _, p := range m.payments {
		if p.Status == model.PaymentStatusSucceeded && m.orders.status(p.OrderID) == model.OrderStatusCreated {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id int64, status model.PaymentStatus, raw map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != model.PaymentStatusRequiresAction {
		return false, nil
	}
	p.Status = status
	p.RawPayload = raw
	return true, nil
}

func (m *memPaymentRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

func (m *memPaymentRepo) countStatus(status model.PaymentStatus) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.payments {
		if p.Status == status {
			n++
		}
	}
	return n
}

// =============================
// Inventory
// =============================

type memInventoryRepo struct {
	mu    sync.Mutex
	items map[int64]*model.InventoryItem
	seq   int64
	// writes counts successful conditional writes.
	writes int
	// queries records every candidate query.
	queries []repository.CandidateQuery
}

func newMemInventoryRepo() *memInventoryRepo {
	return &memInventoryRepo{items: map[int64]*model.InventoryItem{}}
}

func cloneItem(it *model.InventoryItem) *model.InventoryItem {
	cp := *it
	return &cp
}

func (m *memInventoryRepo) Insert(ctx context.Context, tx repository.Tx, it *model.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	it.ID = m.seq
	if it.Status == "" {
		it.Status = model.InventoryAvailable
	}
	m.items[it.ID] = cloneItem(it)
	return nil
}

func (m *memInventoryRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *memInventoryRepo) FindByHolder(ctx context.Context, tx repository.Tx, orderID int64) (*model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.HeldBy(orderID) && (it.Status == model.InventoryReserved || it.Status == model.InventoryAssigned) {
			return cloneItem(it), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memInventoryRepo) ListCandidates(ctx context.Context, tx repository.Tx, q repository.CandidateQuery) ([]*model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	excluded := map[int64]bool{}
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}
	ids := make([]int64, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*model.InventoryItem
	for _, id := range ids {
		it := m.items[id]
		if excluded[id] || !it.Claimable(q.Now) || !it.Matches(q.PlanID, q.CountryID, q.CarrierID) {
			continue
		}
		out = append(out, cloneItem(it))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memInventoryRepo) TryReserve(ctx context.Context, tx repository.Tx, id, holderOrderID int64, until, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || !it.Claimable(now) {
		return false, nil
	}
	it.Status = model.InventoryReserved
	it.HolderOrderID = &holderOrderID
	it.ReservedUntil = &until
	m.writes++
	return true, nil
}

func (m *memInventoryRepo) Assign(ctx context.Context, tx repository.Tx, id, holderOrderID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != model.InventoryReserved || !it.HeldBy(holderOrderID) || it.ReservationExpired(now) {
		return false, nil
	}
	it.Status = model.InventoryAssigned
	it.AssignedAt = &now
	it.ReservedUntil = nil
	m.writes++
	return true, nil
}

func (m *memInventoryRepo) Release(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != model.InventoryReserved {
		return false, nil
	}
	it.Status = model.InventoryAvailable
	it.HolderOrderID = nil
	it.ReservedUntil = nil
	m.writes++
	return true, nil
}

func (m *memInventoryRepo) ReleaseHeldBy(ctx context.Context, tx repository.Tx, orderID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.Status == model.InventoryReserved && it.HeldBy(orderID) {
			it.Status = model.InventoryAvailable
			it.HolderOrderID = nil
			it.ReservedUntil = nil
			n++
		}
	}
	m.writes += int(n)
	return n, nil
}

func (m *memInventoryRepo) ReclaimExpired(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.items {
		if it.ReservationExpired(now) {
			it.Status = model.InventoryAvailable
			it.HolderOrderID = nil
			it.ReservedUntil = nil
			n++
		}
	}
	return n, nil
}

func (m *memInventoryRepo) Retire(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Status != model.InventoryAssigned {
		return false, nil
	}
	it.Status = model.InventoryRetired
	return true, nil
}

func (m *memInventoryRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.InventoryStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.InventoryStatus]int{}
	for _, it := range m.items {
		out[it.Status]++
	}
	return out, nil
}

func (m *memInventoryRepo) get(id int64) model.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *memInventoryRepo) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// =============================
// eSIM profiles
// =============================

type memEsimRepo struct {
	mu        sync.RWMutex
	profiles  map[int64]*model.EsimProfile
	seq       int64
	updateErr error
}

func newMemEsimRepo() *memEsimRepo { return &memEsimRepo{profiles: map[int64]*model.EsimProfile{}} }

func (m *memEsimRepo) Create(ctx context.Context, tx repository.Tx, p *model.EsimProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.profiles {
		if ex.OrderID == p.OrderID {
			return domain.ErrAlreadyExists
		}
	}
	m.seq++
	p.ID = m.seq
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memEsimRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.EsimProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memEsimRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID int64) (*model.EsimProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memEsimRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64) ([]*model.EsimProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EsimProfile
	for _, p := range m.profiles {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memEsimRepo) Update(ctx context.Context, tx repository.Tx, p *model.EsimProfile) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memEsimRepo) ListExpiring(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.EsimProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EsimProfile
	for _, p := range m.profiles {
		if p.Status == model.EsimActive && p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEsimRepo) MarkExpiredIfActive(ctx context.Context, tx repository.Tx, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok || p.Status != model.EsimActive {
		return false, nil
	}
	p.Status = model.EsimExpired
	return true, nil
}

func (m *memEsimRepo) byOrder(orderID int64) model.EsimProfile {
	p, _ := m.FindByOrderID(context.Background(), nil, orderID)
	return *p
}

// =============================
// Adapters
// =============================

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingPublisher) Publish(ctx context.Context, e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type MockPaymentGateway struct {
	NameVal           model.PaymentProvider
	CreateIntentFunc  func(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error)
	ParseCallbackFunc func(ctx context.Context, body []byte, header http.Header) (adapter.IntentResult, error)

	mu    sync.Mutex
	calls int
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() model.PaymentProvider {
	if m.NameVal == "" {
		return model.ProviderMock
	}
	return m.NameVal
}

func (m *MockPaymentGateway) CreateIntent(ctx context.Context, req adapter.IntentRequest) (adapter.IntentResult, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, req)
	}
	return adapter.IntentResult{
		IntentID: fmt.Sprintf("intent-%d", n),
		Status:   model.PaymentStatusSucceeded,
	}, nil
}

func (m *MockPaymentGateway) ParseCallback(ctx context.Context, body []byte, header http.Header) (adapter.IntentResult, error) {
	if m.ParseCallbackFunc != nil {
		return m.ParseCallbackFunc(ctx, body, header)
	}
	return adapter.IntentResult{}, domain.ErrInvalidArgument
}

func (m *MockPaymentGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	l.held[key] = key + "-token"
	return key + "-token", nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}
