package repository

import (
	"context"
	"time"

	"esim-fulfillment/internal/domain/model"
)

// CandidateQuery selects claimable items for a plan.
type CandidateQuery struct {
	PlanID     int64
	CountryID  int64
	CarrierID  int64
	Now        time.Time
	ExcludeIDs []int64
	Limit      int
	// HolderOrderID seeds the scan order so concurrent callers start on different rows.
	HolderOrderID int64
}

// InventoryRepository is the only writer of inventory rows.
// Every transition is a single conditional write that reports whether it won.
type InventoryRepository interface {
	Insert(ctx context.Context, tx Tx, it *model.InventoryItem) error
	FindByID(ctx context.Context, tx Tx, id int64) (*model.InventoryItem, error)
	// FindByHolder returns the reserved or assigned item held by an order.
	FindByHolder(ctx context.Context, tx Tx, orderID int64) (*model.InventoryItem, error)
	ListCandidates(ctx context.Context, tx Tx, q CandidateQuery) ([]*model.InventoryItem, error)

	TryReserve(ctx context.Context, tx Tx, id, holderOrderID int64, until, now time.Time) (bool, error)
	Assign(ctx context.Context, tx Tx, id, holderOrderID int64, now time.Time) (bool, error)
	Release(ctx context.Context, tx Tx, id int64) (bool, error)
	ReleaseHeldBy(ctx context.Context, tx Tx, orderID int64) (int64, error)
	ReclaimExpired(ctx context.Context, tx Tx, now time.Time) (int64, error)
	Retire(ctx context.Context, tx Tx, id int64) (bool, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.InventoryStatus]int, error)
}
