package model

import (
	"strconv"
	"time"
)

type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "created"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is one purchase attempt of a plan by a user. Orders are never deleted.
type Order struct {
	ID               int64
	UserID           int64
	PlanID           int64
	PlanSnapshot     PlanSnapshot
	Status           OrderStatus
	Currency         string
	AmountMinorUnits int64
	IdempotencyKey   *string
	PaidPaymentID    *int64
	FailureReason    *string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Loaded on demand for read models.
	EsimProfile *EsimProfile
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated: {OrderStatusPaid, OrderStatusFailed},
	OrderStatusPaid:    {OrderStatusRefunded},
}

// CanTransitionTo reports whether the order status machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFailed || s == OrderStatusRefunded
}

// IdempotencyScope namespaces a client key by user so keys never collide across users.
func IdempotencyScope(userID int64, key string) string {
	return strconv.FormatInt(userID, 10) + ":" + key
}
