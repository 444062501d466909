package model

import "time"

type InventoryStatus string

const (
	InventoryAvailable InventoryStatus = "available"
	InventoryReserved  InventoryStatus = "reserved"
	InventoryAssigned  InventoryStatus = "assigned"
	InventoryRetired   InventoryStatus = "retired"
)

// InventoryItem is one provisionable eSIM in the pool.
// PlanID is nil for pool items that serve any plan of the same carrier and country.
type InventoryItem struct {
	ID             int64
	PlanID         *int64
	CountryID      int64
	CarrierID      int64
	ICCID          string
	SMDPAddress    string
	ActivationCode *string
	Status         InventoryStatus
	HolderOrderID  *int64
	ReservedUntil  *time.Time
	AssignedAt     *time.Time
	CreatedAt      time.Time
}

// Claimable reports whether a reserve attempt may take the item at now.
func (it *InventoryItem) Claimable(now time.Time) bool {
	switch it.Status {
	case InventoryAvailable:
		return true
	case InventoryReserved:
		return it.ReservationExpired(now)
	}
	return false
}

func (it *InventoryItem) ReservationExpired(now time.Time) bool {
	return it.Status == InventoryReserved && it.ReservedUntil != nil && !it.ReservedUntil.After(now)
}

func (it *InventoryItem) HeldBy(orderID int64) bool {
	return it.HolderOrderID != nil && *it.HolderOrderID == orderID
}

// Matches reports whether the item can serve a plan of the given carrier and country.
func (it *InventoryItem) Matches(planID, countryID, carrierID int64) bool {
	if it.PlanID != nil {
		return *it.PlanID == planID
	}
	return it.CountryID == countryID && it.CarrierID == carrierID
}
