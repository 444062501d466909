package api

import (
	"time"

	"esim-fulfillment/internal/domain/model"
)

type createOrderRequest struct {
	PlanID   int64  `json:"plan_id"`
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	OrderID  int64  `json:"order_id"`
	Provider string `json:"provider"`
}

type activateRequest struct {
	OrderID int64 `json:"order_id"`
}

type orderDTO struct {
	ID               int64              `json:"id"`
	PlanID           int64              `json:"plan_id"`
	Status           model.OrderStatus  `json:"status"`
	Currency         string             `json:"currency"`
	AmountMinorUnits int64              `json:"amount_minor_units"`
	AmountMajor      string             `json:"amount_major"`
	FailureReason    *string            `json:"failure_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	PlanSnapshot     model.PlanSnapshot `json:"plan_snapshot"`
	EsimProfile      *esimDTO           `json:"esim_profile"`
}

func toOrderDTO(o *model.Order) orderDTO {
	d := orderDTO{
		ID:               o.ID,
		PlanID:           o.PlanID,
		Status:           o.Status,
		Currency:         o.Currency,
		AmountMinorUnits: o.AmountMinorUnits,
		AmountMajor:      model.FormatMinorUnits(o.AmountMinorUnits),
		FailureReason:    o.FailureReason,
		CreatedAt:        o.CreatedAt,
		PlanSnapshot:     o.PlanSnapshot,
	}
	if o.EsimProfile != nil {
		e := toEsimDTO(o.EsimProfile)
		d.EsimProfile = &e
	}
	return d
}

type paymentDTO struct {
	ID               int64                 `json:"id"`
	OrderID          int64                 `json:"order_id"`
	Provider         model.PaymentProvider `json:"provider"`
	IntentID         string                `json:"intent_id"`
	Status           model.PaymentStatus   `json:"status"`
	AmountMinorUnits int64                 `json:"amount_minor_units"`
	AmountMajor      string                `json:"amount_major"`
	Currency         string                `json:"currency"`
	CreatedAt        time.Time             `json:"created_at"`
}

func toPaymentDTO(p *model.Payment) paymentDTO {
	return paymentDTO{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Provider:         p.Provider,
		IntentID:         p.IntentID,
		Status:           p.Status,
		AmountMinorUnits: p.AmountMinorUnits,
		AmountMajor:      model.FormatMinorUnits(p.AmountMinorUnits),
		Currency:         p.Currency,
		CreatedAt:        p.CreatedAt,
	}
}

type esimDTO struct {
	ID             int64            `json:"id"`
	OrderID        int64            `json:"order_id"`
	PlanID         int64            `json:"plan_id"`
	Status         model.EsimStatus `json:"status"`
	ActivationCode *string          `json:"activation_code"`
	ICCID          *string          `json:"iccid"`
	QRPayload      *string          `json:"qr_payload"`
	Instructions   *string          `json:"instructions"`
	FailureReason  *string          `json:"failure_reason,omitempty"`
	ActivatedAt    *time.Time       `json:"activated_at"`
	ExpiresAt      *time.Time       `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

func toEsimDTO(p *model.EsimProfile) esimDTO {
	return esimDTO{
		ID:             p.ID,
		OrderID:        p.OrderID,
		PlanID:         p.PlanID,
		Status:         p.Status,
		ActivationCode: p.ActivationCode,
		ICCID:          p.ICCID,
		QRPayload:      p.QRPayload,
		Instructions:   p.Instructions,
		FailureReason:  p.FailureReason,
		ActivatedAt:    p.ActivatedAt,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
	}
}
