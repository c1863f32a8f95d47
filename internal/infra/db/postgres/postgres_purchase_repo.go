package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
)

type PostgresPurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{pool: pool}
}

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

const purchaseCols = `id, user_id, number, status, price, otp, created_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var (
		p      model.Purchase
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Number, &status, &p.Price, &p.OTP, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Status = model.PurchaseStatus(status)
	return &p, nil
}

// isUniqueViolation matches the partial unique indexes on pending purchases.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
		INSERT INTO purchases (id, user_id, number, status, price, otp, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.UserID, p.Number, string(p.Status), p.Price, p.OTP, p.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrPendingPurchaseExists
	}
	return err
}

func (r *PostgresPurchaseRepo) FindPendingByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Purchase, error) {
	return scanPurchase(pickRow(ctx, r.pool, tx, `
		SELECT `+purchaseCols+` FROM purchases
		WHERE user_id=$1 AND status='pending'
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, userID))
}

func (r *PostgresPurchaseRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Purchase, error) {
	return scanPurchase(pickRow(ctx, r.pool, tx, `
		SELECT `+purchaseCols+` FROM purchases
		WHERE user_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, userID))
}

func (r *PostgresPurchaseRepo) FindPendingByNumber(ctx context.Context, tx repository.Tx, number string) (*model.Purchase, error) {
	return scanPurchase(pickRow(ctx, r.pool, tx, `
		SELECT `+purchaseCols+` FROM purchases
		WHERE number=$1 AND status='pending'
		ORDER BY created_at DESC LIMIT 1`, number))
}

func (r *PostgresPurchaseRepo) SetOTP(ctx context.Context, tx repository.Tx, number, code string) (*model.Purchase, error) {
	return scanPurchase(pickRow(ctx, r.pool, tx, `
		UPDATE purchases SET status='otp_received', otp=$2
		WHERE id = (
			SELECT id FROM purchases
			WHERE number=$1 AND status='pending'
			ORDER BY created_at DESC LIMIT 1
			FOR UPDATE
		) AND status='pending'
		RETURNING `+purchaseCols, number, code))
}

func (r *PostgresPurchaseRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `UPDATE purchases SET status='cancelled' WHERE id=$1 AND status='pending'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPurchaseNotPending
	}
	return nil
}

func (r *PostgresPurchaseRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.PurchaseStatus) (int, error) {
	var n int
	if err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM purchases WHERE status=$1`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count purchases: %w", err)
	}
	return n, nil
}
