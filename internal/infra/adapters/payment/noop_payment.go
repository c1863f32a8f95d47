package payment

import (
	"context"
	"fmt"
	"sync"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

var (
	_ adapter.WebhookVerifier = (*NoopPaymentGateway)(nil)
	_ adapter.PaymentLinker   = (*NoopPaymentGateway)(nil)
)

// NoopPaymentGateway stands in when no gateway is configured. It rejects
// every webhook and hands out fake links, which keeps dev runs self-contained.
type NoopPaymentGateway struct {
	mu    sync.Mutex
	seq   int64
	links map[string]int64 // link id -> user id
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{links: make(map[string]int64)}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) Verify(payload []byte, signature string) (*adapter.PaymentEvent, error) {
	return nil, domain.ErrInvalidSignature
}

func (g *NoopPaymentGateway) CreatePaymentLink(ctx context.Context, userID, amount int64) (*adapter.PaymentLink, error) {
	if userID <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.links[id] = userID
	return &adapter.PaymentLink{ID: id, URL: "https://example.test/pay/" + id}, nil
}
