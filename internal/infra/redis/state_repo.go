package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/metrics"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo keeps each user's in-progress dialogue (onboarding, deposit) in
// Redis. Entries expire after ttl so abandoned flows clean themselves up.
type StateRepo struct {
	client *Client
	ttl    time.Duration
}

func NewStateRepo(client *Client, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(tgID int64) string {
	return fmt.Sprintf("dialogue:%d", tgID)
}

func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *model.Dialogue) error {
	if state == nil {
		return s.ClearState(ctx, tgID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(tgID), data, s.ttl)
}

// GetState returns (nil, nil) when the user has no dialogue.
func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*model.Dialogue, error) {
	data, err := s.client.Get(ctx, s.stateKey(tgID))
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("dialogue", "miss")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.IncCacheRequest("dialogue", "hit")

	var state model.Dialogue
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		// Unreadable state is dropped rather than blocking the user.
		_ = s.client.Del(ctx, s.stateKey(tgID))
		return nil, nil
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	return s.client.Del(ctx, s.stateKey(tgID))
}
