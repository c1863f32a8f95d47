package repository

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
)

// -----------------------------
// Manual payment claims
// -----------------------------

type UTRRepository interface {
	Save(ctx context.Context, tx Tx, r *model.UTRRequest) error
	// Resolve sets the status of the user's pending requests and returns how many changed.
	Resolve(ctx context.Context, tx Tx, userID int64, status model.UTRStatus) (int, error)
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.UTRRequest, error)
}
