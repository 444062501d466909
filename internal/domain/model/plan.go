package model

import "time"

// Plan is a catalog entry joined with its country and carrier.
// The catalog itself is owned elsewhere; this service only reads it.
type Plan struct {
	ID              int64
	Name            string
	Description     string
	CountryID       int64
	CountryName     string
	CountryISO2     string
	CarrierID       int64
	CarrierName     string
	DataGB          *float64 // nil when unlimited
	IsUnlimited     bool
	DurationDays    int
	PriceMinorUnits int64
	Currency        string
	IsActive        bool
	UpdatedAt       time.Time
}

// PlanSnapshot is the frozen copy of a plan's terms embedded into an order.
type PlanSnapshot struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CountryName     string   `json:"country_name"`
	CountryISO2     string   `json:"country_iso2"`
	CountryID       int64    `json:"country_id"`
	CarrierName     string   `json:"carrier_name"`
	CarrierID       int64    `json:"carrier_id"`
	DataGB          *float64 `json:"data_gb"`
	IsUnlimited     bool     `json:"is_unlimited"`
	DurationDays    int      `json:"duration_days"`
	PriceMinorUnits int64    `json:"price_minor_units"`
	Currency        string   `json:"currency"`
}

// NewPlanSnapshot returns a detached copy of p. No pointer is shared with the plan.
func NewPlanSnapshot(p *Plan) PlanSnapshot {
	s := PlanSnapshot{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		CountryName:     p.CountryName,
		CountryISO2:     p.CountryISO2,
		CountryID:       p.CountryID,
		CarrierName:     p.CarrierName,
		CarrierID:       p.CarrierID,
		IsUnlimited:     p.IsUnlimited || p.DataGB == nil,
		DurationDays:    p.DurationDays,
		PriceMinorUnits: p.PriceMinorUnits,
		Currency:        p.Currency,
	}
	if p.DataGB != nil && !p.IsUnlimited {
		gb := *p.DataGB
		s.DataGB = &gb
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s PlanSnapshot) Clone() PlanSnapshot {
	cp := s
	if s.DataGB != nil {
		gb := *s.DataGB
		cp.DataGB = &gb
	}
	return cp
}
