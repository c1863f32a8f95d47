package repository

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
)

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	// FindPendingByUser returns the buyer's pending purchase or domain.ErrNotFound.
	FindPendingByUser(ctx context.Context, tx Tx, userID int64) (*model.Purchase, error)
	// FindLatestByUser returns the buyer's most recent purchase in any status.
	FindLatestByUser(ctx context.Context, tx Tx, userID int64) (*model.Purchase, error)
	// FindPendingByNumber returns the most recent pending purchase for number.
	FindPendingByNumber(ctx context.Context, tx Tx, number string) (*model.Purchase, error)
	// SetOTP moves the most recent pending purchase for number to otp_received.
	// It returns domain.ErrNotFound when no pending purchase exists.
	SetOTP(ctx context.Context, tx Tx, number, code string) (*model.Purchase, error)
	// Cancel moves the buyer's pending purchase to cancelled.
	Cancel(ctx context.Context, tx Tx, id string) error
	CountByStatus(ctx context.Context, tx Tx, status model.PurchaseStatus) (int, error)
}
