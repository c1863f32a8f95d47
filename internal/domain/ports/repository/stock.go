package repository

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
)

// -----------------------------
// Stock (phone accounts)
// -----------------------------

type StockRepository interface {
	// Add inserts phone as in_stock, or puts an existing row back in stock.
	Add(ctx context.Context, tx Tx, phone string) error
	// Dispense marks the oldest in_stock phone as assigned and returns it.
	// It returns domain.ErrOutOfStock when nothing is available.
	Dispense(ctx context.Context, tx Tx) (string, error)
	SetStatus(ctx context.Context, tx Tx, phone string, status model.StockStatus) error
	Find(ctx context.Context, tx Tx, phone string) (*model.PhoneAccount, error)
	Count(ctx context.Context, tx Tx) (int, error)
	CountByStatus(ctx context.Context, tx Tx, status model.StockStatus) (int, error)
	ListByStatus(ctx context.Context, tx Tx, statuses ...model.StockStatus) ([]*model.PhoneAccount, error)
}
