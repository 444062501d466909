// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/adapter"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/logging"
	"esim-fulfillment/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// CreatePayment charges an order through the provider and settles the order from the result.
	// A declined charge returns the failed payment together with domain.ErrPaymentFailed.
	CreatePayment(ctx context.Context, userID, orderID int64, provider, idempotencyKey string) (*model.Payment, error)
	// HandleCallback applies a provider notification to a requires_action payment.
	HandleCallback(ctx context.Context, provider string, body []byte, header http.Header) (*model.Payment, error)
	// SettleOutstanding marks paid the created orders that already hold a succeeded payment.
	SettleOutstanding(ctx context.Context) (int, error)
}

const (
	paymentLockTTL  = 30 * time.Second
	settleBatchSize = 100
)

type paymentUC struct {
	payments        repository.PaymentRepository
	orders          repository.OrderRepository
	orderUC         OrderUseCase
	gateways        map[model.PaymentProvider]adapter.PaymentGateway
	defaultProvider model.PaymentProvider
	locker          adapter.Locker
	log             *zerolog.Logger
}

// NewPaymentUseCase wires the gateways by name. locker may be nil.
func NewPaymentUseCase(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	orderUC OrderUseCase,
	defaultProvider string,
	locker adapter.Locker,
	logger *zerolog.Logger,
	gateways ...adapter.PaymentGateway,
) *paymentUC {
	gws := make(map[model.PaymentProvider]adapter.PaymentGateway, len(gateways))
	for _, g := range gateways {
		gws[g.Name()] = g
	}
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		payments:        payments,
		orders:          orders,
		orderUC:         orderUC,
		gateways:        gws,
		defaultProvider: normalizeProvider(defaultProvider),
		locker:          locker,
		log:             &l,
	}
}

func normalizeProvider(p string) model.PaymentProvider {
	return model.PaymentProvider(strings.ToUpper(strings.TrimSpace(p)))
}

func (u *paymentUC) gateway(provider string) (adapter.PaymentGateway, error) {
	name := normalizeProvider(provider)
	if name == "" {
		name = u.defaultProvider
	}
	g, ok := u.gateways[name]
	if !ok {
		return nil, domain.ErrUnsupportedProvider
	}
	return g, nil
}

func (u *paymentUC) CreatePayment(ctx context.Context, userID, orderID int64, provider, idempotencyKey string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreatePayment")()

	gw, err := u.gateway(provider)
	if err != nil {
		return nil, err
	}

	order, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}

	// One charge attempt per order at a time.
	if u.locker != nil {
		key := "lock:payment:order:" + strconv.FormatInt(orderID, 10)
		token, err := u.locker.TryLock(ctx, key, paymentLockTTL)
		if err != nil {
			return nil, err
		}
		defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), key, token) }()

		if order, err = u.orders.FindByID(ctx, repository.NoTX, orderID); err != nil {
			return nil, err
		}
	}

	switch order.Status {
	case model.OrderStatusPaid:
		return u.succeededPayment(ctx, order)
	case model.OrderStatusFailed, model.OrderStatusRefunded:
		return nil, domain.ErrInvalidTransition
	}

	// A recorded attempt is settled instead of charging again.
	prior, err := u.openAttempt(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		u.log.Info().Int64("order_id", orderID).Int64("payment_id", prior.ID).Str("status", string(prior.Status)).Msg("reusing recorded payment")
		return u.settle(ctx, order, prior, true)
	}

	res, err := gw.CreateIntent(ctx, adapter.IntentRequest{
		OrderID:          order.ID,
		UserID:           order.UserID,
		AmountMinorUnits: order.AmountMinorUnits,
		Currency:         order.Currency,
		Description:      fmt.Sprintf("Order #%d %s", order.ID, order.PlanSnapshot.Name),
		IdempotencyKey:   strings.TrimSpace(idempotencyKey),
	})
	if err != nil {
		u.log.Error().Err(err).Int64("order_id", orderID).Str("provider", string(gw.Name())).Msg("create intent failed")
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if !res.Status.Valid() {
		return nil, fmt.Errorf("provider %s returned status %q: %w", gw.Name(), res.Status, domain.ErrInvalidArgument)
	}

	// A replayed idempotency key yields the same intent; never record it twice.
	if existing, err := u.payments.FindByIntentID(ctx, repository.NoTX, gw.Name(), res.IntentID); err == nil {
		return u.settle(ctx, order, existing, true)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	p := &model.Payment{
		OrderID:          order.ID,
		Provider:         gw.Name(),
		IntentID:         res.IntentID,
		Status:           res.Status,
		AmountMinorUnits: order.AmountMinorUnits,
		Currency:         order.Currency,
		RawPayload:       res.Raw,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := u.payments.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	metrics.IncPayment(string(p.Status))
	u.log.Info().Int64("order_id", orderID).Int64("payment_id", p.ID).Str("status", string(p.Status)).Msg("payment recorded")

	return u.settle(ctx, order, p, true)
}

func (u *paymentUC) succeededPayment(ctx context.Context, order *model.Order) (*model.Payment, error) {
	if order.PaidPaymentID != nil {
		return u.payments.FindByID(ctx, repository.NoTX, *order.PaidPaymentID)
	}
	list, err := u.payments.ListByOrder(ctx, repository.NoTX, order.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if p.Status == model.PaymentStatusSucceeded {
			return p, nil
		}
	}
	return nil, domain.ErrInvalidTransition
}

// openAttempt returns the succeeded attempt for an order, else its pending one, else nil.
func (u *paymentUC) openAttempt(ctx context.Context, orderID int64) (*model.Payment, error) {
	list, err := u.payments.ListByOrder(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	var pending *model.Payment
	for _, p := range list {
		switch p.Status {
		case model.PaymentStatusSucceeded:
			return p, nil
		case model.PaymentStatusRequiresAction:
			if pending == nil {
				pending = p
			}
		}
	}
	return pending, nil
}

// settle lets the order observe the payment outcome.
func (u *paymentUC) settle(ctx context.Context, order *model.Order, p *model.Payment, reportDecline bool) (*model.Payment, error) {
	switch p.Status {
	case model.PaymentStatusSucceeded:
		if err := u.orderUC.MarkPaid(ctx, order.ID, p.ID); err != nil {
			return p, err
		}
	case model.PaymentStatusFailed:
		if err := u.orderUC.MarkFailed(ctx, order.ID, "payment failed"); err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return p, err
		}
		if reportDecline {
			return p, domain.ErrPaymentFailed
		}
	}
	return p, nil
}

func (u *paymentUC) HandleCallback(ctx context.Context, provider string, body []byte, header http.Header) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.HandleCallback")()

	gw, err := u.gateway(provider)
	if err != nil {
		return nil, err
	}
	res, err := gw.ParseCallback(ctx, body, header)
	if err != nil {
		return nil, err
	}
	p, err := u.payments.FindByIntentID(ctx, repository.NoTX, gw.Name(), res.IntentID)
	if err != nil {
		return nil, err
	}

	if !p.Status.IsFinal() && res.Status.IsFinal() {
		ok, err := u.payments.UpdateStatusIfPending(ctx, repository.NoTX, p.ID, res.Status, res.Raw)
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.IncPayment(string(res.Status))
		}
		if p, err = u.payments.FindByID(ctx, repository.NoTX, p.ID); err != nil {
			return nil, err
		}
	}

	order, err := u.orders.FindByID(ctx, repository.NoTX, p.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusCreated {
		return p, nil
	}
	return u.settle(ctx, order, p, false)
}

func (u *paymentUC) SettleOutstanding(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.SettleOutstanding")()

	list, err := u.payments.ListUnsettled(ctx, repository.NoTX, settleBatchSize)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, p := range list {
		if err := u.orderUC.MarkPaid(ctx, p.OrderID, p.ID); err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				u.log.Error().Err(err).Int64("order_id", p.OrderID).Int64("payment_id", p.ID).Msg("settle payment failed")
			}
			continue
		}
		settled++
	}
	return settled, nil
}
