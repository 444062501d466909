package usecase

import (
	"context"
	"errors"

	"esim-fulfillment/internal/domain"
	"esim-fulfillment/internal/domain/model"
	"esim-fulfillment/internal/domain/ports/repository"
	"esim-fulfillment/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PlanSnapshotter = (*snapshotUC)(nil)

// PlanSnapshotter freezes a plan's commercial terms. It only reads.
type PlanSnapshotter interface {
	Snapshot(ctx context.Context, planID int64) (*model.PlanSnapshot, error)
}

type snapshotUC struct {
	plans repository.PlanRepository
	log   *zerolog.Logger
}

func NewPlanSnapshotter(plans repository.PlanRepository, logger *zerolog.Logger) *snapshotUC {
	return &snapshotUC{plans: plans, log: logger}
}

func (u *snapshotUC) Snapshot(ctx context.Context, planID int64) (*model.PlanSnapshot, error) {
	defer logging.TraceDuration(u.log, "SnapshotUC.Snapshot")()

	if planID <= 0 {
		return nil, domain.ErrPlanNotFound
	}
	plan, err := u.plans.FindByID(ctx, repository.NoTX, planID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}
	snap := model.NewPlanSnapshot(plan)
	return &snap, nil
}
