package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AlertUseCase = (*alertUC)(nil)

// AlertUseCase sends periodic owner reminders: low stock and deposit claims
// that have waited too long for review.
type AlertUseCase interface {
	CheckAndNotify(ctx context.Context) (int, error)
}

type alertUC struct {
	stock    repository.StockRepository
	utrs     repository.UTRRepository
	bot      adapter.TelegramBotAdapter
	ownerID  int64
	lowStock int
	utrAge   time.Duration
	now      func() time.Time
	log      *zerolog.Logger

	mu            sync.Mutex
	lowStockSent  bool
	remindedUTRID map[string]struct{}
}

func NewAlertUseCase(
	stock repository.StockRepository,
	utrs repository.UTRRepository,
	bot adapter.TelegramBotAdapter,
	ownerID int64,
	lowStock int,
	utrAge time.Duration,
	logger *zerolog.Logger,
) *alertUC {
	return &alertUC{
		stock:         stock,
		utrs:          utrs,
		bot:           bot,
		ownerID:       ownerID,
		lowStock:      lowStock,
		utrAge:        utrAge,
		now:           time.Now,
		log:           logger,
		remindedUTRID: map[string]struct{}{},
	}
}

// CheckAndNotify returns the number of messages sent to the owner. The low
// stock alert fires once per dip and re-arms when stock recovers; each stale
// claim is reminded once.
func (n *alertUC) CheckAndNotify(ctx context.Context) (int, error) {
	sent := 0

	if n.lowStock > 0 {
		inStock, err := n.stock.CountByStatus(ctx, repository.NoTX, model.StockStatusInStock)
		if err != nil {
			return sent, err
		}
		n.mu.Lock()
		fire := inStock <= n.lowStock && !n.lowStockSent
		if inStock > n.lowStock {
			n.lowStockSent = false
		}
		n.mu.Unlock()
		if fire {
			if err := n.send(ctx, fmt.Sprintf("⚠️ Low stock: %d numbers left.", inStock)); err != nil {
				return sent, err
			}
			n.mu.Lock()
			n.lowStockSent = true
			n.mu.Unlock()
			sent++
		}
	}

	if n.utrAge > 0 {
		pending, err := n.utrs.ListPending(ctx, repository.NoTX, 200)
		if err != nil {
			return sent, err
		}
		cutoff := n.now().Add(-n.utrAge)
		for _, r := range pending {
			if r.RequestedAt.After(cutoff) {
				continue
			}
			n.mu.Lock()
			_, done := n.remindedUTRID[r.ID]
			n.mu.Unlock()
			if done {
				continue
			}
			msg := fmt.Sprintf("⏰ Deposit claim still pending\n👤 User ID: %d\n🏦 UTR: %s\n💰 Amount: ₹%d", r.UserID, r.UTR, r.Amount)
			err := n.bot.SendMessage(ctx, adapter.SendMessageParams{
				ChatID:      n.ownerID,
				Text:        msg,
				ReplyMarkup: adapter.ReviewButtons(r.UserID, r.Amount, "✅ Approve", "❌ Reject"),
			})
			if err != nil {
				return sent, err
			}
			n.mu.Lock()
			n.remindedUTRID[r.ID] = struct{}{}
			n.mu.Unlock()
			sent++
		}
	}
	return sent, nil
}

func (n *alertUC) send(ctx context.Context, text string) error {
	return n.bot.SendMessage(ctx, adapter.SendMessageParams{ChatID: n.ownerID, Text: text})
}
