package repository

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
)

// -----------------------------
// Users (wallets)
// -----------------------------

type UserRepository interface {
	// Ensure creates the wallet row if it does not exist yet.
	Ensure(ctx context.Context, tx Tx, userID int64) error
	FindByID(ctx context.Context, tx Tx, userID int64) (*model.User, error)
	// FindByIDForUpdate locks the wallet row for the rest of tx.
	FindByIDForUpdate(ctx context.Context, tx Tx, userID int64) (*model.User, error)
	// AddBalance applies delta atomically and returns the new balance.
	AddBalance(ctx context.Context, tx Tx, userID int64, delta int64) (int64, error)
	// DeductBalance subtracts amount only if the balance covers it.
	DeductBalance(ctx context.Context, tx Tx, userID int64, amount int64) (int64, error)
	CountUsers(ctx context.Context, tx Tx) (int, error)
	// ListIDs pages through user IDs greater than afterID in ascending order.
	ListIDs(ctx context.Context, tx Tx, afterID int64, limit int) ([]int64, error)
}
