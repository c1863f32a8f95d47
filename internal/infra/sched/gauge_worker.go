package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/infra/metrics"
	"telegram-otp-marketplace/internal/usecase"
)

// GaugeWorker refreshes gauges that have no natural update point: stock
// levels per status and the database pool.
type GaugeWorker struct {
	interval  time.Duration
	inventory usecase.InventoryUseCase
	pool      *pgxpool.Pool
	log       *zerolog.Logger
}

func NewGaugeWorker(interval time.Duration, inventory usecase.InventoryUseCase, pool *pgxpool.Pool, logger *zerolog.Logger) *GaugeWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := logger.With().Str("component", "GaugeWorker").Logger()
	return &GaugeWorker{interval: interval, inventory: inventory, pool: pool, log: &l}
}

func (w *GaugeWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting gauge worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping gauge worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *GaugeWorker) tick(ctx context.Context) {
	// Summary sets the stock gauges as a side effect.
	if _, err := w.inventory.Summary(ctx); err != nil && ctx.Err() == nil {
		w.log.Warn().Err(err).Msg("stock summary failed")
	}
	if w.pool != nil {
		st := w.pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
	}
}
