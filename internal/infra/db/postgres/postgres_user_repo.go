package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/metrics"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) Ensure(ctx context.Context, tx repository.Tx, userID int64) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING;`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		metrics.IncUsersRegistered()
	}
	return nil
}

func (r *PostgresUserRepo) find(ctx context.Context, tx repository.Tx, q string, userID int64) (*model.User, error) {
	var u model.User
	if err := pickRow(ctx, r.pool, tx, q, userID).Scan(&u.ID, &u.Balance, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	return r.find(ctx, tx, `SELECT id, balance, created_at FROM users WHERE id=$1;`, userID)
}

func (r *PostgresUserRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	return r.find(ctx, tx, `SELECT id, balance, created_at FROM users WHERE id=$1 FOR UPDATE;`, userID)
}

func (r *PostgresUserRepo) AddBalance(ctx context.Context, tx repository.Tx, userID int64, delta int64) (int64, error) {
	const q = `
INSERT INTO users (id, balance) VALUES ($1, GREATEST($2, 0))
ON CONFLICT (id) DO UPDATE SET balance = users.balance + $2
RETURNING balance;`
	var bal int64
	if err := pickRow(ctx, r.pool, tx, q, userID, delta).Scan(&bal); err != nil {
		return 0, fmt.Errorf("add balance: %w", err)
	}
	return bal, nil
}

func (r *PostgresUserRepo) DeductBalance(ctx context.Context, tx repository.Tx, userID int64, amount int64) (int64, error) {
	const q = `UPDATE users SET balance = balance - $2 WHERE id=$1 AND balance >= $2 RETURNING balance;`
	var bal int64
	if err := pickRow(ctx, r.pool, tx, q, userID, amount).Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientBalance
		}
		return 0, fmt.Errorf("deduct balance: %w", err)
	}
	return bal, nil
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	var n int
	if err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (r *PostgresUserRepo) ListIDs(ctx context.Context, tx repository.Tx, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT id FROM users WHERE id > $1 ORDER BY id LIMIT $2;`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
