package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type EsimStatus string

const (
	EsimDraft             EsimStatus = "draft"
	EsimPendingActivation EsimStatus = "pending_activation"
	EsimReserved          EsimStatus = "reserved"
	EsimAssigned          EsimStatus = "assigned"
	EsimActive            EsimStatus = "active"
	EsimFailed            EsimStatus = "failed"
	EsimExpired           EsimStatus = "expired"
)

const DefaultInstructions = "Install via Settings > Cellular > Add eSIM and scan the QR or enter the activation code manually."

var esimTransitions = map[EsimStatus][]EsimStatus{
	EsimDraft:             {EsimPendingActivation, EsimFailed},
	EsimPendingActivation: {EsimReserved, EsimFailed},
	EsimReserved:          {EsimAssigned, EsimActive, EsimFailed},
	EsimAssigned:          {EsimActive, EsimFailed},
	EsimActive:            {EsimExpired},
	EsimFailed:            {EsimPendingActivation},
}

// CanTransitionTo reports whether the profile machine allows s -> next.
// A failed profile may re-enter pending_activation when the caller retries.
func (s EsimStatus) CanTransitionTo(next EsimStatus) bool {
	for _, allowed := range esimTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EsimProfile is the customer-facing activation record of an order.
type EsimProfile struct {
	ID              int64
	OrderID         int64
	UserID          int64
	PlanID          int64
	InventoryItemID *int64
	Status          EsimStatus
	ActivationCode  *string
	ICCID           *string
	QRPayload       *string
	Instructions    *string
	FailureReason   *string
	ActivatedAt     *time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActivationArtifact is derived from an inventory item only, so it can be reproduced for audits.
type ActivationArtifact struct {
	ActivationCode string
	ICCID          string
	QRPayload      string
	Instructions   string
}

// DeriveArtifact builds the activation artifact for an assigned item.
func DeriveArtifact(it *InventoryItem) ActivationArtifact {
	code := ""
	if it.ActivationCode != nil {
		code = strings.TrimSpace(*it.ActivationCode)
	}
	if code == "" {
		sum := sha256.Sum256([]byte(it.ICCID + "|" + it.SMDPAddress))
		code = "ESIM-" + strings.ToUpper(hex.EncodeToString(sum[:]))[:20]
	}
	qr := "LPA:1$" + code
	if it.SMDPAddress != "" {
		qr = "LPA:1$" + it.SMDPAddress + "$" + code
	}
	return ActivationArtifact{
		ActivationCode: code,
		ICCID:          it.ICCID,
		QRPayload:      qr,
		Instructions:   DefaultInstructions,
	}
}
