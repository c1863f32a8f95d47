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
)

var _ repository.StockRepository = (*PostgresStockRepo)(nil)

type PostgresStockRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresStockRepo(pool *pgxpool.Pool) *PostgresStockRepo {
	return &PostgresStockRepo{pool: pool}
}

func (r *PostgresStockRepo) Add(ctx context.Context, tx repository.Tx, phone string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
		INSERT INTO stock_log (phone, status, added_at) VALUES ($1, 'in_stock', now())
		ON CONFLICT (phone) DO UPDATE SET status='in_stock', added_at=now()`, phone)
	return err
}

// Dispense takes the oldest in_stock phone. SKIP LOCKED lets concurrent
// buyers each get a different row.
func (r *PostgresStockRepo) Dispense(ctx context.Context, tx repository.Tx) (string, error) {
	const q = `
UPDATE stock_log SET status='assigned'
WHERE phone = (
	SELECT phone FROM stock_log
	WHERE status='in_stock'
	ORDER BY added_at, phone
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING phone;`
	var phone string
	if err := pickRow(ctx, r.pool, tx, q).Scan(&phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrOutOfStock
		}
		return "", fmt.Errorf("dispense: %w", err)
	}
	return phone, nil
}

func (r *PostgresStockRepo) SetStatus(ctx context.Context, tx repository.Tx, phone string, status model.StockStatus) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `UPDATE stock_log SET status=$2 WHERE phone=$1`, phone, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresStockRepo) Find(ctx context.Context, tx repository.Tx, phone string) (*model.PhoneAccount, error) {
	var (
		a      model.PhoneAccount
		status string
	)
	err := pickRow(ctx, r.pool, tx, `SELECT phone, status, added_at FROM stock_log WHERE phone=$1`, phone).
		Scan(&a.Phone, &status, &a.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Status = model.StockStatus(status)
	return &a, nil
}

func (r *PostgresStockRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	var n int
	if err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM stock_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stock: %w", err)
	}
	return n, nil
}

func (r *PostgresStockRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.StockStatus) (int, error) {
	var n int
	if err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM stock_log WHERE status=$1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stock: %w", err)
	}
	return n, nil
}

func (r *PostgresStockRepo) ListByStatus(ctx context.Context, tx repository.Tx, statuses ...model.StockStatus) ([]*model.PhoneAccount, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	ss := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ss = append(ss, string(s))
	}
	rows, err := ex.Query(ctx, `
		SELECT phone, status, added_at FROM stock_log
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY added_at, phone`, ss)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PhoneAccount
	for rows.Next() {
		var (
			a      model.PhoneAccount
			status string
		)
		if err := rows.Scan(&a.Phone, &status, &a.AddedAt); err != nil {
			return nil, err
		}
		a.Status = model.StockStatus(status)
		out = append(out, &a)
	}
	return out, rows.Err()
}
