package usecase

import (
	"context"
	"errors"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/logging"
	"esim-fulfillment/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ InventoryAllocator = (*inventoryUC)(nil)

// ReserveRequest describes what an order needs from the pool.
type ReserveRequest struct {
	PlanID        int64
	CountryID     int64
	CarrierID     int64
	HolderOrderID int64
	TTL           time.Duration
}

// InventoryAllocator owns every inventory state transition.
// Methods taking a tx join the caller's transaction.
type InventoryAllocator interface {
	Reserve(ctx context.Context, tx repository.Tx, req ReserveRequest) (*model.InventoryItem, error)
	Assign(ctx context.Context, tx repository.Tx, itemID, holderOrderID int64) (*model.InventoryItem, error)
	Release(ctx context.Context, tx repository.Tx, itemID int64) error
	ReleaseHeldBy(ctx context.Context, tx repository.Tx, orderID int64) (int64, error)
	Retire(ctx context.Context, tx repository.Tx, itemID int64) error
	ReclaimExpired(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[model.InventoryStatus]int, error)
}

type AllocatorOptions struct {
	ReservationTTL time.Duration
	CandidateBatch int
	MaxRounds      int
}

type inventoryUC struct {
	items repository.InventoryRepository
	opts  AllocatorOptions
	log   *zerolog.Logger
	now   func() time.Time
}

func NewInventoryAllocator(items repository.InventoryRepository, opts AllocatorOptions, logger *zerolog.Logger) *inventoryUC {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = 10 * time.Minute
	}
	if opts.CandidateBatch <= 0 {
		opts.CandidateBatch = 5
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 3
	}
	l := logger.With().Str("component", "InventoryAllocator").Logger()
	return &inventoryUC{items: items, opts: opts, log: &l, now: time.Now}
}

// Reserve claims one matching item for the holder order.
// Each candidate is tried once with a conditional write; losing a race moves on to
// the next candidate, and after MaxRounds batches the pool is reported exhausted.
func (u *inventoryUC) Reserve(ctx context.Context, tx repository.Tx, req ReserveRequest) (*model.InventoryItem, error) {
	defer logging.TraceDuration(u.log, "InventoryUC.Reserve")()

	if req.HolderOrderID <= 0 || req.PlanID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = u.opts.ReservationTTL
	}
	now := u.now()

	held, err := u.items.FindByHolder(ctx, tx, req.HolderOrderID)
	switch {
	case err == nil && held != nil:
		if held.Status == model.InventoryAssigned || !held.ReservationExpired(now) {
			return held, nil
		}
		until := now.Add(ttl)
		ok, err := u.items.TryReserve(ctx, tx, held.ID, req.HolderOrderID, until, now)
		if err != nil {
			return nil, err
		}
		if ok {
			held.ReservedUntil = &until
			metrics.IncReservation("renewed")
			return held, nil
		}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	tried := make([]int64, 0, u.opts.CandidateBatch*u.opts.MaxRounds)
	for round := 0; round < u.opts.MaxRounds; round++ {
		candidates, err := u.items.ListCandidates(ctx, tx, repository.CandidateQuery{
			PlanID:        req.PlanID,
			CountryID:     req.CountryID,
			CarrierID:     req.CarrierID,
			Now:           now,
			ExcludeIDs:    tried,
			Limit:         u.opts.CandidateBatch,
			HolderOrderID: req.HolderOrderID,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		for _, c := range candidates {
			tried = append(tried, c.ID)
			until := now.Add(ttl)
			ok, err := u.items.TryReserve(ctx, tx, c.ID, req.HolderOrderID, until, now)
			if err != nil {
				return nil, err
			}
			if !ok {
				metrics.IncReservation("lost")
				continue
			}
			holder := req.HolderOrderID
			c.Status = model.InventoryReserved
			c.HolderOrderID = &holder
			c.ReservedUntil = &until
			metrics.IncReservation("won")
			u.log.Debug().Int64("item_id", c.ID).Int64("order_id", holder).Int("round", round).Msg("inventory reserved")
			return c, nil
		}
	}

	metrics.IncReservation("exhausted")
	u.log.Warn().Int64("plan_id", req.PlanID).Int64("order_id", req.HolderOrderID).Int("tried", len(tried)).Msg("inventory exhausted")
	return nil, domain.ErrOutOfInventory
}

// Assign converts the holder's live reservation into a permanent assignment.
// Re-assigning an item already assigned to the same holder is a no-op.
func (u *inventoryUC) Assign(ctx context.Context, tx repository.Tx, itemID, holderOrderID int64) (*model.InventoryItem, error) {
	defer logging.TraceDuration(u.log, "InventoryUC.Assign")()

	now := u.now()
	ok, err := u.items.Assign(ctx, tx, itemID, holderOrderID, now)
	if err != nil {
		return nil, err
	}
	it, err := u.items.FindByID(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if ok {
		return it, nil
	}

	switch {
	case it.Status == model.InventoryAssigned && it.HeldBy(holderOrderID):
		return it, nil
	case it.HolderOrderID != nil && !it.HeldBy(holderOrderID):
		return nil, domain.ErrReservationMismatch
	case it.Status == model.InventoryAvailable, it.ReservationExpired(now):
		return nil, domain.ErrReservationExpired
	default:
		return nil, domain.ErrReservationMismatch
	}
}

// Release returns a reserved item to the pool. Releasing an available item is a no-op.
func (u *inventoryUC) Release(ctx context.Context, tx repository.Tx, itemID int64) error {
	ok, err := u.items.Release(ctx, tx, itemID)
	if err != nil || ok {
		return err
	}
	it, err := u.items.FindByID(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if it.Status == model.InventoryAvailable {
		return nil
	}
	return domain.ErrInvalidTransition
}

func (u *inventoryUC) ReleaseHeldBy(ctx context.Context, tx repository.Tx, orderID int64) (int64, error) {
	n, err := u.items.ReleaseHeldBy(ctx, tx, orderID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.log.Info().Int64("order_id", orderID).Int64("released", n).Msg("reservation released")
	}
	return n, nil
}

func (u *inventoryUC) Retire(ctx context.Context, tx repository.Tx, itemID int64) error {
	ok, err := u.items.Retire(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ReclaimExpired reverts every lapsed reservation to available.
func (u *inventoryUC) ReclaimExpired(ctx context.Context) (int64, error) {
	n, err := u.items.ReclaimExpired(ctx, repository.NoTX, u.now())
	if err != nil {
		return 0, err
	}
	metrics.AddReservationsReclaimed(n)
	return n, nil
}

func (u *inventoryUC) CountByStatus(ctx context.Context) (map[model.InventoryStatus]int, error) {
	return u.items.CountByStatus(ctx, repository.NoTX)
}
