// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
	"telegram-otp-marketplace/internal/otp"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

type PurchaseUseCase interface {
	// Buy dispenses the oldest in-stock number to userID and starts its listener.
	Buy(ctx context.Context, userID int64) (*BuyResult, error)
	// GetOTP returns the received code, or makes sure a listener is waiting for it.
	GetOTP(ctx context.Context, userID int64) (*OTPResult, error)
	// Cancel refunds a pending purchase and returns the number to stock.
	Cancel(ctx context.Context, userID int64) (*CancelResult, error)
	Price() int64
}

type BuyResult struct {
	Purchase *model.Purchase
	Balance  int64
	// ListenerErr is set when the purchase succeeded but the listener could
	// not be started yet; GetOTP retries.
	ListenerErr error
}

type OTPResult struct {
	Purchase        *model.Purchase
	Code            string
	ListenerStarted bool
	ListenerErr     error
}

func (r *OTPResult) Waiting() bool { return r != nil && r.Code == "" }

type CancelResult struct {
	Purchase *model.Purchase
	Refunded int64
	Balance  int64
}

type purchaseUC struct {
	users     repository.UserRepository
	purchases repository.PurchaseRepository
	stock     repository.StockRepository
	tm        repository.TransactionManager
	listeners ListenerController
	price     int64
	log       *zerolog.Logger
}

func NewPurchaseUseCase(
	users repository.UserRepository,
	purchases repository.PurchaseRepository,
	stock repository.StockRepository,
	tm repository.TransactionManager,
	listeners ListenerController,
	price int64,
	logger *zerolog.Logger,
) *purchaseUC {
	return &purchaseUC{
		users:     users,
		purchases: purchases,
		stock:     stock,
		tm:        tm,
		listeners: listeners,
		price:     price,
		log:       logger,
	}
}

func (u *purchaseUC) Price() int64 { return u.price }

// Row locks (wallet FOR UPDATE, stock SKIP LOCKED) carry the concurrency
// guarantees, so read committed is enough here.
var lockingTx = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func (u *purchaseUC) Buy(ctx context.Context, userID int64) (*BuyResult, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.Buy")()

	var res BuyResult
	err := u.tm.WithTx(ctx, lockingTx, func(ctx context.Context, tx repository.Tx) error {
		if err := u.users.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		wallet, err := u.users.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if _, err := u.purchases.FindPendingByUser(ctx, tx, userID); err == nil {
			return domain.ErrPendingPurchaseExists
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if !wallet.CanAfford(u.price) {
			return domain.ErrInsufficientBalance
		}

		phone, err := u.stock.Dispense(ctx, tx)
		if err != nil {
			return err
		}
		bal, err := u.users.DeductBalance(ctx, tx, userID, u.price)
		if err != nil {
			return err
		}
		p, err := model.NewPurchase(userID, phone, u.price)
		if err != nil {
			return err
		}
		if err := u.purchases.Save(ctx, tx, p); err != nil {
			return err
		}
		res.Purchase = p
		res.Balance = bal
		return nil
	})
	if err != nil {
		if !isUserError(err) {
			u.log.Error().Err(err).Int64("tg_id", userID).Msg("buy failed")
		}
		return nil, err
	}
	metrics.IncPurchase(string(model.PurchaseStatusPending))

	if _, err := u.listeners.Start(ctx, res.Purchase.Number); err != nil {
		u.log.Warn().Err(err).Str("purchase_id", res.Purchase.ID).Msg("listener start failed after purchase")
		res.ListenerErr = err
	}
	u.log.Info().Int64("tg_id", userID).Str("purchase_id", res.Purchase.ID).Int64("balance", res.Balance).Msg("number purchased")
	return &res, nil
}

func (u *purchaseUC) GetOTP(ctx context.Context, userID int64) (*OTPResult, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.GetOTP")()

	p, err := u.purchases.FindLatestByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoPendingPurchase
	}
	if err != nil {
		return nil, err
	}

	res := &OTPResult{Purchase: p}
	switch {
	case p.HasCode():
		res.Code = p.Code()
		return res, nil
	case !p.IsPending():
		return nil, domain.ErrNoPendingPurchase
	}

	if !u.listeners.IsActive(p.Number) {
		started, err := u.listeners.Start(ctx, p.Number)
		res.ListenerStarted = started
		res.ListenerErr = err
	}
	return res, nil
}

func (u *purchaseUC) Cancel(ctx context.Context, userID int64) (*CancelResult, error) {
	defer logging.TraceDuration(u.log, "PurchaseUC.Cancel")()

	var res CancelResult
	err := u.tm.WithTx(ctx, lockingTx, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.purchases.FindPendingByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := u.purchases.Cancel(ctx, tx, p.ID); err != nil {
			return err
		}
		bal, err := u.users.AddBalance(ctx, tx, userID, p.Price)
		if err != nil {
			return err
		}
		if err := u.stock.SetStatus(ctx, tx, p.Number, model.StockStatusInStock); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		p.Status = model.PurchaseStatusCancelled
		res = CancelResult{Purchase: p, Refunded: p.Price, Balance: bal}
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, u.rejectCancel(ctx, userID)
	}
	if err != nil {
		if !isUserError(err) {
			u.log.Error().Err(err).Int64("tg_id", userID).Msg("cancel failed")
		}
		return nil, err
	}

	// The number goes back on sale with its session intact, so unlike a
	// rejected cancel this stop does not log the session out.
	u.listeners.Stop(res.Purchase.Number, false, otp.ReasonCancelled)
	metrics.IncPurchase(string(model.PurchaseStatusCancelled))
	u.log.Info().Int64("tg_id", userID).Str("purchase_id", res.Purchase.ID).Msg("purchase cancelled")
	return &res, nil
}

// rejectCancel handles a cancel with nothing pending. A purchase whose code
// already arrived cannot be refunded, but its session is ended right away
// whether or not a listener is still running.
func (u *purchaseUC) rejectCancel(ctx context.Context, userID int64) error {
	latest, err := u.purchases.FindLatestByUser(ctx, repository.NoTX, userID)
	if err != nil || latest.Status != model.PurchaseStatusOTPReceived {
		return domain.ErrNoPendingPurchase
	}
	metrics.IncPurchase("rejected")
	// The listener may already be gone after a dropped connection; the
	// stored session is logged out either way.
	if err := u.listeners.ForceLogout(ctx, latest.Number); err != nil {
		u.log.Warn().Err(err).Str("purchase_id", latest.ID).Msg("force logout after rejected cancel failed")
	}
	return domain.ErrPurchaseNotPending
}

// isUserError reports errors that are expected outcomes of user actions.
func isUserError(err error) bool {
	for _, e := range []error{
		domain.ErrInsufficientBalance,
		domain.ErrOutOfStock,
		domain.ErrPendingPurchaseExists,
		domain.ErrNoPendingPurchase,
		domain.ErrPurchaseNotPending,
		domain.ErrInvalidUTR,
		domain.ErrInvalidArgument,
		domain.ErrNoPendingDeposit,
		domain.ErrNoDialogue,
		domain.ErrDuplicatePayment,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
