package sched

import (
	"context"
	"time"

	"telegram-otp-marketplace/internal/usecase"

	"github.com/rs/zerolog"
)

// NotificationWorker runs the owner alert check on a fixed interval.
type NotificationWorker struct {
	interval time.Duration
	alerts   usecase.AlertUseCase
	log      *zerolog.Logger
}

func NewNotificationWorker(interval time.Duration, alerts usecase.AlertUseCase, logger *zerolog.Logger) *NotificationWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{
		interval: interval,
		alerts:   alerts,
		log:      &compLog,
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting notification worker")
	// Run once on startup, then on every tick
	w.runCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping notification worker")
			return ctx.Err()
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *NotificationWorker) runCheck(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sent, err := w.alerts.CheckAndNotify(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("owner alert check failed")
	}
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("owner alerts sent")
	}
}
