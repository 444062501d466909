package usecase

import (
	"context"
	"errors"
	"strings"
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
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase creates orders and drives their status machine.
type OrderUseCase interface {
	CreateOrder(ctx context.Context, userID, planID int64, currency, idempotencyKey string) (*model.Order, error)
	// MarkPaid moves created -> paid. Repeating it with the same payment is a no-op.
	MarkPaid(ctx context.Context, orderID, paymentID int64) error
	MarkFailed(ctx context.Context, orderID int64, reason string) error
	Refund(ctx context.Context, orderID int64) (*model.Order, error)
	ListForUser(ctx context.Context, userID int64) ([]*model.Order, error)
	GetForUser(ctx context.Context, userID, orderID int64) (*model.Order, error)
}

type OrderOptions struct {
	DefaultCurrency string
	Currencies      []string
}

type orderUC struct {
	orders      repository.OrderRepository
	payments    repository.PaymentRepository
	esims       repository.EsimProfileRepository
	snapshotter PlanSnapshotter
	inventory   InventoryAllocator
	tm          repository.TransactionManager
	events      adapter.EventPublisher
	defaultCur  string
	currencies  map[string]struct{}
	log         *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	esims repository.EsimProfileRepository,
	snapshotter PlanSnapshotter,
	inventory InventoryAllocator,
	tm repository.TransactionManager,
	events adapter.EventPublisher,
	opts OrderOptions,
	logger *zerolog.Logger,
) *orderUC {
	curs := make(map[string]struct{}, len(opts.Currencies))
	for _, c := range opts.Currencies {
		curs[model.NormalizeCurrency(c)] = struct{}{}
	}
	def := model.NormalizeCurrency(opts.DefaultCurrency)
	if def == "" {
		def = "USD"
	}
	if len(curs) == 0 {
		curs[def] = struct{}{}
	}
	l := logger.With().Str("component", "OrderUC").Logger()
	return &orderUC{
		orders:      orders,
		payments:    payments,
		esims:       esims,
		snapshotter: snapshotter,
		inventory:   inventory,
		tm:          tm,
		events:      events,
		defaultCur:  def,
		currencies:  curs,
		log:         &l,
	}
}

func (u *orderUC) CreateOrder(ctx context.Context, userID, planID int64, currency, idempotencyKey string) (*model.Order, error) {
	defer logging.TraceDuration(u.log, "OrderUC.CreateOrder")()

	if userID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	cur := model.NormalizeCurrency(currency)
	if cur == "" {
		cur = u.defaultCur
	}
	if _, ok := u.currencies[cur]; !ok || !model.IsCurrencyCode(cur) {
		return nil, domain.ErrInvalidCurrency
	}

	var scopedKey *string
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		s := model.IdempotencyScope(userID, k)
		scopedKey = &s
		if existing, err := u.orders.FindByIdempotencyKey(ctx, repository.NoTX, s); err == nil {
			return u.replay(existing, planID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	snap, err := u.snapshotter.Snapshot(ctx, planID)
	if err != nil {
		return nil, err
	}
	// Plans are priced in a single currency; there is no conversion.
	if snap.Currency != "" && model.NormalizeCurrency(snap.Currency) != cur {
		return nil, domain.ErrInvalidCurrency
	}
	snap.Currency = cur

	now := time.Now()
	order := &model.Order{
		UserID:           userID,
		PlanID:           planID,
		PlanSnapshot:     snap.Clone(),
		Status:           model.OrderStatusCreated,
		Currency:         cur,
		AmountMinorUnits: snap.PriceMinorUnits,
		IdempotencyKey:   scopedKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		profile := &model.EsimProfile{
			OrderID:   order.ID,
			UserID:    userID,
			PlanID:    planID,
			Status:    model.EsimDraft,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.esims.Create(ctx, tx, profile); err != nil {
			return err
		}
		order.EsimProfile = profile
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) && scopedKey != nil {
			// Lost a race against a concurrent request with the same key.
			existing, ferr := u.orders.FindByIdempotencyKey(ctx, repository.NoTX, *scopedKey)
			if ferr != nil {
				return nil, ferr
			}
			return u.replay(existing, planID)
		}
		u.log.Error().Err(err).Int64("user_id", userID).Int64("plan_id", planID).Msg("create order failed")
		return nil, err
	}

	metrics.IncOrder(string(model.OrderStatusCreated))
	amount := order.AmountMinorUnits
	u.events.Publish(ctx, model.Event{
		Type:             model.EventCheckoutStarted,
		UserID:           userID,
		OrderID:          &order.ID,
		PlanID:           &order.PlanID,
		AmountMinorUnits: &amount,
		Currency:         cur,
		Metadata:         map[string]any{"plan_name": snap.Name},
	})
	u.log.Info().Int64("order_id", order.ID).Int64("user_id", userID).Int64("plan_id", planID).Msg("order created")
	return order, nil
}

func (u *orderUC) replay(existing *model.Order, planID int64) (*model.Order, error) {
	if existing.PlanID != planID {
		return nil, domain.ErrInvalidArgument
	}
	return existing, nil
}

func (u *orderUC) MarkPaid(ctx context.Context, orderID, paymentID int64) error {
	defer logging.TraceDuration(u.log, "OrderUC.MarkPaid")()

	var (
		order       *model.Order
		transitions bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		o, err := u.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		p, err := u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.OrderID != orderID || p.Status != model.PaymentStatusSucceeded {
			return domain.ErrInvalidTransition
		}
		if o.Status == model.OrderStatusPaid && o.PaidPaymentID != nil && *o.PaidPaymentID == paymentID {
			order = o
			return nil
		}

		ok, err := u.orders.MarkPaidIfCreated(ctx, tx, orderID, paymentID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		o.Status = model.OrderStatusPaid
		o.PaidPaymentID = &paymentID

		profile, err := u.esims.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if profile.Status == model.EsimDraft {
			profile.Status = model.EsimPendingActivation
			profile.UpdatedAt = time.Now()
			if err := u.esims.Update(ctx, tx, profile); err != nil {
				return err
			}
		}
		order = o
		transitions = true
		return nil
	})
	if err != nil {
		return err
	}
	if !transitions {
		return nil
	}

	metrics.IncOrder(string(model.OrderStatusPaid))
	metrics.AddPaymentRevenue(order.Currency, order.AmountMinorUnits)
	amount := order.AmountMinorUnits
	u.events.Publish(ctx, model.Event{
		Type:             model.EventPaymentSucceeded,
		UserID:           order.UserID,
		OrderID:          &order.ID,
		PlanID:           &order.PlanID,
		AmountMinorUnits: &amount,
		Currency:         order.Currency,
		Metadata:         map[string]any{"payment_id": paymentID},
	})
	u.log.Info().Int64("order_id", orderID).Int64("payment_id", paymentID).Msg("order paid")
	return nil
}

// MarkFailed terminates a created order and returns any held reservation to the pool.
func (u *orderUC) MarkFailed(ctx context.Context, orderID int64, reason string) error {
	defer logging.TraceDuration(u.log, "OrderUC.MarkFailed")()

	var order *model.Order
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		o, err := u.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == model.OrderStatusFailed {
			return nil
		}
		ok, err := u.orders.MarkFailedIfCreated(ctx, tx, orderID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		o.Status = model.OrderStatusFailed
		o.FailureReason = &reason

		if _, err := u.inventory.ReleaseHeldBy(ctx, tx, orderID); err != nil {
			return err
		}
		profile, err := u.esims.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if profile.Status.CanTransitionTo(model.EsimFailed) {
			profile.Status = model.EsimFailed
			profile.FailureReason = &reason
			profile.UpdatedAt = time.Now()
			if err := u.esims.Update(ctx, tx, profile); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil || order == nil {
		return err
	}

	metrics.IncOrder(string(model.OrderStatusFailed))
	u.events.Publish(ctx, model.Event{
		Type:     model.EventPaymentFailed,
		UserID:   order.UserID,
		OrderID:  &order.ID,
		PlanID:   &order.PlanID,
		Currency: order.Currency,
		Metadata: map[string]any{"reason": reason},
	})
	u.log.Info().Int64("order_id", orderID).Str("reason", reason).Msg("order failed")
	return nil
}

// Refund is an admin operation: paid -> refunded. Delivered eSIMs stay assigned.
func (u *orderUC) Refund(ctx context.Context, orderID int64) (*model.Order, error) {
	defer logging.TraceDuration(u.log, "OrderUC.Refund")()

	var (
		order    *model.Order
		refunded bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		o, err := u.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.Status == model.OrderStatusRefunded {
			return nil
		}
		ok, err := u.orders.MarkRefundedIfPaid(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		o.Status = model.OrderStatusRefunded
		if _, err := u.inventory.ReleaseHeldBy(ctx, tx, orderID); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refunded {
		metrics.IncOrder(string(model.OrderStatusRefunded))
		amount := order.AmountMinorUnits
		u.events.Publish(ctx, model.Event{
			Type:             model.EventOrderRefunded,
			UserID:           order.UserID,
			OrderID:          &order.ID,
			PlanID:           &order.PlanID,
			AmountMinorUnits: &amount,
			Currency:         order.Currency,
		})
		u.log.Info().Int64("order_id", orderID).Msg("order refunded")
	}
	return order, nil
}

// ListForUser returns the user's orders newest first, each with its eSIM profile.
func (u *orderUC) ListForUser(ctx context.Context, userID int64) ([]*model.Order, error) {
	defer logging.TraceDuration(u.log, "OrderUC.ListForUser")()

	orders, err := u.orders.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	profiles, err := u.esims.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[int64]*model.EsimProfile, len(profiles))
	for _, p := range profiles {
		byOrder[p.OrderID] = p
	}
	for _, o := range orders {
		o.EsimProfile = byOrder[o.ID]
	}
	return orders, nil
}

func (u *orderUC) GetForUser(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrForbidden
	}
	profile, err := u.esims.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	o.EsimProfile = profile
	return o, nil
}
