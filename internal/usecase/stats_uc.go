package usecase

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Totals(ctx context.Context) (*Stats, error)
}

// Stats is the owner's dashboard snapshot.
type Stats struct {
	Users           int
	PurchasesByStat map[model.PurchaseStatus]int
	PendingDeposits int
	Stock           *StockSummary
}

type statsUC struct {
	users     repository.UserRepository
	purchases repository.PurchaseRepository
	utrs      repository.UTRRepository
	inventory InventoryUseCase

	log *zerolog.Logger
}

func NewStatsUseCase(
	users repository.UserRepository,
	purchases repository.PurchaseRepository,
	utrs repository.UTRRepository,
	inventory InventoryUseCase,
	logger *zerolog.Logger,
) *statsUC {
	return &statsUC{users: users, purchases: purchases, utrs: utrs, inventory: inventory, log: logger}
}

func (s *statsUC) Totals(ctx context.Context) (*Stats, error) {
	users, err := s.users.CountUsers(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	out := &Stats{Users: users, PurchasesByStat: map[model.PurchaseStatus]int{}}
	for _, st := range []model.PurchaseStatus{
		model.PurchaseStatusPending,
		model.PurchaseStatusOTPReceived,
		model.PurchaseStatusCancelled,
	} {
		n, err := s.purchases.CountByStatus(ctx, repository.NoTX, st)
		if err != nil {
			return nil, err
		}
		out.PurchasesByStat[st] = n
	}
	pending, err := s.utrs.ListPending(ctx, repository.NoTX, 1000)
	if err != nil {
		return nil, err
	}
	out.PendingDeposits = len(pending)

	if out.Stock, err = s.inventory.Summary(ctx); err != nil {
		return nil, err
	}
	return out, nil
}
