package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
)

var _ repository.UTRRepository = (*PostgresUTRRepo)(nil)

type PostgresUTRRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUTRRepo(pool *pgxpool.Pool) *PostgresUTRRepo {
	return &PostgresUTRRepo{pool: pool}
}

func (r *PostgresUTRRepo) Save(ctx context.Context, tx repository.Tx, u *model.UTRRequest) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
		INSERT INTO utr_requests (id, user_id, utr, amount, status, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.UserID, u.UTR, u.Amount, string(u.Status), u.RequestedAt)
	return err
}

func (r *PostgresUTRRepo) Resolve(ctx context.Context, tx repository.Tx, userID int64, status model.UTRStatus) (int, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return 0, err
	}
	tag, err := ex.Exec(ctx, `UPDATE utr_requests SET status=$2 WHERE user_id=$1 AND status='pending'`, userID, string(status))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresUTRRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.UTRRequest, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := ex.Query(ctx, `
		SELECT id, user_id, utr, amount, status, requested_at FROM utr_requests
		WHERE status='pending' ORDER BY requested_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UTRRequest
	for rows.Next() {
		var (
			u      model.UTRRequest
			status string
		)
		if err := rows.Scan(&u.ID, &u.UserID, &u.UTR, &u.Amount, &status, &u.RequestedAt); err != nil {
			return nil, err
		}
		u.Status = model.UTRStatus(status)
		out = append(out, &u)
	}
	return out, rows.Err()
}
