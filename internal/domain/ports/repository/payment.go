package repository

import (
	"context"
	"time"
)

// GatewayPayment is a captured gateway payment that has been credited.
type GatewayPayment struct {
	ID         string
	Gateway    string
	UserID     int64
	Amount     int64
	CreditedAt time.Time
}

// PaymentRepository records gateway payments so webhook retries credit once.
type PaymentRepository interface {
	// Record stores p. It returns domain.ErrDuplicatePayment when p.ID was seen before.
	Record(ctx context.Context, tx Tx, p *GatewayPayment) error
	ListByUser(ctx context.Context, tx Tx, userID int64, limit int) ([]*GatewayPayment, error)
}
