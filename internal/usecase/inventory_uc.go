// File: internal/usecase/inventory_uc.go
package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
)

var _ InventoryUseCase = (*inventoryUC)(nil)

type InventoryUseCase interface {
	// StockCount is the number of phones available for sale.
	StockCount(ctx context.Context) (int, error)
	Summary(ctx context.Context) (*StockSummary, error)
	List(ctx context.Context, statuses ...model.StockStatus) ([]*model.PhoneAccount, error)
	ForceLogout(ctx context.Context, phone string) error
	ActiveListeners() []string
	// WarmStart reconnects stored sessions at boot.
	WarmStart(ctx context.Context) (*WarmStartReport, error)
}

type StockSummary struct {
	InStock   int
	Assigned  int
	LoggedOut int
	Listeners int
}

type WarmStartReport struct {
	Started int
	Removed int
	Skipped int
	Failed  int
}

type inventoryUC struct {
	stock     repository.StockRepository
	purchases repository.PurchaseRepository
	sessions  adapter.SessionStore
	listeners ListenerController
	parallel  int
	dev       bool
	log       *zerolog.Logger
}

func NewInventoryUseCase(
	stock repository.StockRepository,
	purchases repository.PurchaseRepository,
	sessions adapter.SessionStore,
	listeners ListenerController,
	dev bool,
	logger *zerolog.Logger,
) *inventoryUC {
	return &inventoryUC{stock: stock, purchases: purchases, sessions: sessions, listeners: listeners, parallel: 4, dev: dev, log: logger}
}

func (u *inventoryUC) StockCount(ctx context.Context) (int, error) {
	return u.stock.CountByStatus(ctx, repository.NoTX, model.StockStatusInStock)
}

func (u *inventoryUC) Summary(ctx context.Context) (*StockSummary, error) {
	defer logging.TraceDuration(u.log, "InventoryUC.Summary")()

	var s StockSummary
	for _, item := range []struct {
		status model.StockStatus
		dst    *int
	}{
		{model.StockStatusInStock, &s.InStock},
		{model.StockStatusAssigned, &s.Assigned},
		{model.StockStatusLoggedOut, &s.LoggedOut},
	} {
		n, err := u.stock.CountByStatus(ctx, repository.NoTX, item.status)
		if err != nil {
			return nil, err
		}
		*item.dst = n
		metrics.SetStockLevel(string(item.status), n)
	}
	s.Listeners = len(u.listeners.Active())
	return &s, nil
}

func (u *inventoryUC) List(ctx context.Context, statuses ...model.StockStatus) ([]*model.PhoneAccount, error) {
	return u.stock.ListByStatus(ctx, repository.NoTX, statuses...)
}

func (u *inventoryUC) ForceLogout(ctx context.Context, phone string) error {
	defer logging.TraceDuration(u.log, "InventoryUC.ForceLogout")()

	phone = model.NormalizePhone(phone)
	if phone == "" {
		return domain.ErrInvalidArgument
	}
	if _, err := u.stock.Find(ctx, repository.NoTX, phone); err != nil {
		return err
	}
	if err := u.listeners.ForceLogout(ctx, phone); err != nil {
		return err
	}
	u.log.Info().Str("phone", logging.Redact(phone, u.dev)).Msg("phone force logged out")
	return nil
}

func (u *inventoryUC) ActiveListeners() []string { return u.listeners.Active() }

func (u *inventoryUC) expireDelivered(ctx context.Context, phone string, log *zerolog.Logger) {
	_, err := u.purchases.FindPendingByNumber(ctx, repository.NoTX, phone)
	switch {
	case err == nil:
		return
	case !errors.Is(err, domain.ErrNotFound):
		log.Warn().Err(err).Msg("pending purchase lookup failed")
		return
	}
	if u.listeners.ScheduleTeardown(phone) {
		log.Info().Msg("code already delivered, teardown scheduled")
	}
}

// WarmStart starts listeners for stored sessions whose phone is in stock or
// assigned. Sessions that are no longer authorized, or belong to logged-out
// phones, are removed. Connect timeouts leave the session in place. An
// assigned phone with no pending purchase already delivered its code, so its
// listener gets a fresh grace period before logout.
func (u *inventoryUC) WarmStart(ctx context.Context) (*WarmStartReport, error) {
	defer logging.TraceDuration(u.log, "InventoryUC.WarmStart")()

	phones, err := u.sessions.StoredPhones()
	if err != nil {
		return nil, err
	}

	var started, removed, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.parallel)
	for _, phone := range phones {
		phone := phone
		g.Go(func() error {
			log := u.log.With().Str("phone", logging.Redact(phone, u.dev)).Logger()

			acc, err := u.stock.Find(gctx, repository.NoTX, phone)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				log.Warn().Msg("session has no stock entry, skipping")
				skipped.Add(1)
				return nil
			case err != nil:
				return err
			case acc.Status == model.StockStatusLoggedOut:
				if err := u.sessions.RemoveSession(phone); err != nil {
					log.Warn().Err(err).Msg("failed to remove stale session")
				}
				removed.Add(1)
				return nil
			}

			_, err = u.listeners.Start(gctx, phone)
			switch {
			case err == nil:
				started.Add(1)
				if acc.Status == model.StockStatusAssigned {
					u.expireDelivered(gctx, phone, &log)
				}
			case errors.Is(err, domain.ErrSessionUnauthorized):
				if rmErr := u.sessions.RemoveSession(phone); rmErr != nil {
					log.Warn().Err(rmErr).Msg("failed to remove unauthorized session")
				}
				if stErr := u.stock.SetStatus(gctx, repository.NoTX, phone, model.StockStatusLoggedOut); stErr != nil {
					log.Warn().Err(stErr).Msg("failed to mark phone logged out")
				}
				removed.Add(1)
			default:
				log.Warn().Err(err).Msg("warm start failed")
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &WarmStartReport{
		Started: int(started.Load()),
		Removed: int(removed.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	u.log.Info().Int("started", rep.Started).Int("removed", rep.Removed).Int("skipped", rep.Skipped).Int("failed", rep.Failed).Msg("warm start finished")
	return rep, nil
}
