package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*PostgresPaymentRepo)(nil)

type PostgresPaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPaymentRepo(pool *pgxpool.Pool) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{pool: pool}
}

func (r *PostgresPaymentRepo) Record(ctx context.Context, tx repository.Tx, p *repository.GatewayPayment) error {
	if p.CreditedAt.IsZero() {
		p.CreditedAt = time.Now().UTC()
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `
		INSERT INTO gateway_payments (id, gateway, user_id, amount, credited_at)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Gateway, p.UserID, p.Amount, p.CreditedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicatePayment
	}
	return nil
}

func (r *PostgresPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit int) ([]*repository.GatewayPayment, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := ex.Query(ctx, `
		SELECT id, gateway, user_id, amount, credited_at FROM gateway_payments
		WHERE user_id=$1 ORDER BY credited_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repository.GatewayPayment
	for rows.Next() {
		var p repository.GatewayPayment
		if err := rows.Scan(&p.ID, &p.Gateway, &p.UserID, &p.Amount, &p.CreditedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
