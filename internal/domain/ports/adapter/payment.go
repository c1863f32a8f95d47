package adapter

import "context"

// PaymentEvent is a verified gateway notification.
type PaymentEvent struct {
	Event     string
	PaymentID string
	UserID    int64
	Amount    int64 // whole rupees
}

// WebhookVerifier authenticates and decodes raw gateway callbacks.
type WebhookVerifier interface {
	Name() string
	Verify(payload []byte, signature string) (*PaymentEvent, error)
}

// PaymentLink is a hosted checkout page for a wallet top-up.
type PaymentLink struct {
	ID  string
	URL string
}

// PaymentLinker creates checkout links whose captured payments come back
// through the webhook tagged with the buyer's user ID.
type PaymentLinker interface {
	Name() string
	CreatePaymentLink(ctx context.Context, userID, amount int64) (*PaymentLink, error)
}
