package usecase

import (
	"context"
	"errors"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/adapter"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/logging"
	"esim-fulfillment/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ EsimUseCase = (*esimUC)(nil)

// EsimUseCase provisions eSIMs for paid orders.
type EsimUseCase interface {
	// Activate is idempotent: an active profile is returned unchanged.
	Activate(ctx context.Context, userID, orderID int64) (*model.EsimProfile, error)
	ListForUser(ctx context.Context, userID int64) ([]*model.EsimProfile, error)
	GetForUser(ctx context.Context, userID, esimID int64) (*model.EsimProfile, error)
	// ExpireDue moves active profiles past their validity to expired and retires their items.
	ExpireDue(ctx context.Context) (int, error)
}

const expireBatch = 100

type esimUC struct {
	orders    repository.OrderRepository
	esims     repository.EsimProfileRepository
	inventory InventoryAllocator
	tm        repository.TransactionManager
	events    adapter.EventPublisher
	ttl       time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewEsimUseCase(
	orders repository.OrderRepository,
	esims repository.EsimProfileRepository,
	inventory InventoryAllocator,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	reservationTTL time.Duration,
	logger *zerolog.Logger,
) *esimUC {
	l := logger.With().Str("component", "EsimUC").Logger()
	return &esimUC{
		orders:    orders,
		esims:     esims,
		inventory: inventory,
		tm:        tm,
		events:    events,
		ttl:       reservationTTL,
		log:       &l,
		now:       time.Now,
	}
}

var txReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func (u *esimUC) Activate(ctx context.Context, userID, orderID int64) (*model.EsimProfile, error) {
	defer logging.TraceDuration(u.log, "EsimUC.Activate")()
	ctx = logging.WithOrderID(ctx, orderID)
	log := logging.With(ctx, u.log)

	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	profile, err := u.esims.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if profile.Status == model.EsimActive {
		metrics.IncActivation("replayed")
		return profile, nil
	}
	if order.Status != model.OrderStatusPaid || profile.Status == model.EsimExpired {
		return nil, domain.ErrInvalidTransition
	}

	// Phase 1: hold an item. A crash after this commit leaves the profile reserved.
	err = u.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.esims.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		profile = p
		if p.Status == model.EsimActive {
			return nil
		}
		o, err := u.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.OrderStatusPaid {
			return domain.ErrInvalidTransition
		}

		// A reserved profile renews its own hold, or claims another if the sweeper took it.
		rehold := p.Status == model.EsimReserved && p.InventoryItemID != nil
		if !rehold && p.Status != model.EsimPendingActivation {
			if !p.Status.CanTransitionTo(model.EsimPendingActivation) {
				return domain.ErrInvalidTransition
			}
			p.Status = model.EsimPendingActivation
			p.UpdatedAt = u.now()
			if err := u.esims.Update(ctx, tx, p); err != nil {
				return err
			}
		}

		item, err := u.inventory.Reserve(ctx, tx, ReserveRequest{
			PlanID:        o.PlanID,
			CountryID:     o.PlanSnapshot.CountryID,
			CarrierID:     o.PlanSnapshot.CarrierID,
			HolderOrderID: orderID,
			TTL:           u.ttl,
		})
		if err != nil {
			return err
		}
		if rehold && *p.InventoryItemID == item.ID {
			return nil
		}
		p.Status = model.EsimReserved
		p.InventoryItemID = &item.ID
		p.FailureReason = nil
		p.UpdatedAt = u.now()
		return u.esims.Update(ctx, tx, p)
	})
	if err != nil {
		return nil, u.fail(ctx, order, err)
	}
	if profile.Status == model.EsimActive {
		metrics.IncActivation("replayed")
		return profile, nil
	}

	// Phase 2: assign the item and persist the artifact together.
	err = u.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.esims.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		profile = p
		if p.Status == model.EsimActive {
			return nil
		}
		if p.Status != model.EsimReserved || p.InventoryItemID == nil {
			return domain.ErrInvalidTransition
		}

		item, err := u.inventory.Assign(ctx, tx, *p.InventoryItemID, orderID)
		if err != nil {
			return err
		}
		art := model.DeriveArtifact(item)
		now := u.now()
		expires := now.AddDate(0, 0, order.PlanSnapshot.DurationDays)
		p.Status = model.EsimActive
		p.ActivationCode = &art.ActivationCode
		p.ICCID = &art.ICCID
		p.QRPayload = &art.QRPayload
		p.Instructions = &art.Instructions
		p.FailureReason = nil
		p.ActivatedAt = &now
		p.ExpiresAt = &expires
		p.UpdatedAt = now
		return u.esims.Update(ctx, tx, p)
	})
	if err != nil {
		return nil, u.fail(ctx, order, err)
	}

	metrics.IncActivation("activated")
	u.events.Publish(ctx, model.Event{
		Type:     model.EventEsimActivated,
		UserID:   order.UserID,
		OrderID:  &order.ID,
		PlanID:   &order.PlanID,
		Currency: order.Currency,
		Metadata: map[string]any{"esim_id": profile.ID, "iccid": deref(profile.ICCID)},
	})
	log.Info().Int64("esim_id", profile.ID).Msg("esim activated")
	return profile, nil
}

// fail records allocator failures on the profile and releases the hold.
// Other errors leave the last committed state untouched so the caller can retry.
func (u *esimUC) fail(ctx context.Context, order *model.Order, cause error) error {
	log := logging.With(ctx, u.log)
	if !isAllocatorError(cause) {
		if errors.Is(cause, domain.ErrInvalidTransition) {
			return cause
		}
		metrics.IncActivation("transient")
		log.Error().Err(cause).Msg("activation interrupted")
		return cause
	}

	reason := cause.Error()
	err := u.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.inventory.ReleaseHeldBy(ctx, tx, order.ID); err != nil {
			return err
		}
		p, err := u.esims.FindByOrderID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(model.EsimFailed) {
			return nil
		}
		p.Status = model.EsimFailed
		p.InventoryItemID = nil
		p.FailureReason = &reason
		p.UpdatedAt = u.now()
		return u.esims.Update(ctx, tx, p)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record activation failure")
	}

	metrics.IncActivation("failed")
	u.events.Publish(ctx, model.Event{
		Type:     model.EventEsimFailed,
		UserID:   order.UserID,
		OrderID:  &order.ID,
		PlanID:   &order.PlanID,
		Currency: order.Currency,
		Metadata: map[string]any{"reason": reason},
	})
	log.Warn().Err(cause).Msg("activation failed")
	return cause
}

func isAllocatorError(err error) bool {
	return errors.Is(err, domain.ErrOutOfInventory) ||
		errors.Is(err, domain.ErrReservationExpired) ||
		errors.Is(err, domain.ErrReservationMismatch)
}

func (u *esimUC) ListForUser(ctx context.Context, userID int64) ([]*model.EsimProfile, error) {
	return u.esims.ListByUser(ctx, repository.NoTX, userID)
}

func (u *esimUC) GetForUser(ctx context.Context, userID, esimID int64) (*model.EsimProfile, error) {
	p, err := u.esims.FindByID(ctx, repository.NoTX, esimID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

func (u *esimUC) ExpireDue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "EsimUC.ExpireDue")()

	due, err := u.esims.ListExpiring(ctx, repository.NoTX, u.now(), expireBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range due {
		expired := false
		err := u.tm.WithTx(ctx, txReadCommitted, func(ctx context.Context, tx repository.Tx) error {
			ok, err := u.esims.MarkExpiredIfActive(ctx, tx, p.ID)
			if err != nil || !ok {
				return err
			}
			if p.InventoryItemID != nil {
				if err := u.inventory.Retire(ctx, tx, *p.InventoryItemID); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
					return err
				}
			}
			expired = true
			return nil
		})
		if err != nil {
			u.log.Error().Err(err).Int64("esim_id", p.ID).Msg("expire esim failed")
			continue
		}
		if expired {
			n++
		}
	}
	return n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
