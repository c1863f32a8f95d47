//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"telegram-otp-marketplace/internal/domain"
)

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPostgresUserRepo(testPool)

	t.Run("ensure is idempotent and starts at zero", func(t *testing.T) {
		cleanup(t)
		if err := repo.Ensure(ctx, nil, 1001); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		if err := repo.Ensure(ctx, nil, 1001); err != nil {
			t.Fatalf("ensure twice: %v", err)
		}
		u, err := repo.FindByID(ctx, nil, 1001)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if u.Balance != 0 {
			t.Errorf("expected zero balance, got %d", u.Balance)
		}
	})

	t.Run("add and deduct", func(t *testing.T) {
		cleanup(t)
		bal, err := repo.AddBalance(ctx, nil, 1002, 50)
		if err != nil || bal != 50 {
			t.Fatalf("add: bal=%d err=%v", bal, err)
		}
		bal, err = repo.DeductBalance(ctx, nil, 1002, 45)
		if err != nil || bal != 5 {
			t.Fatalf("deduct: bal=%d err=%v", bal, err)
		}
		if _, err := repo.DeductBalance(ctx, nil, 1002, 45); !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		n, _ := repo.CountUsers(ctx, nil)
		if n != 1 {
			t.Errorf("expected 1 user, got %d", n)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, nil, 9); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
