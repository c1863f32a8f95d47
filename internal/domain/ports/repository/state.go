package repository

import (
	"context"

	"telegram-otp-marketplace/internal/domain/model"
)

// StateRepository is the port for managing a user's conversational state.
// GetState returns (nil, nil) when no dialogue is stored.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *model.Dialogue) error
	GetState(ctx context.Context, tgID int64) (*model.Dialogue, error)
	ClearState(ctx context.Context, tgID int64) error
}
