// File: internal/usecase/wallet_uc.go
package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
)

var _ WalletUseCase = (*walletUC)(nil)

// WalletUseCase covers balances and deposits: manual UPI transfers claimed
// by UTR and reviewed by the owner, gateway webhooks, and owner top-ups.
type WalletUseCase interface {
	Balance(ctx context.Context, userID int64) (int64, error)

	BeginDeposit(ctx context.Context, userID int64) error
	SubmitUTR(ctx context.Context, userID int64, utr string) error
	SubmitAmount(ctx context.Context, userID int64, amount string) (*model.UTRRequest, error)
	CancelDeposit(ctx context.Context, userID int64) error
	PendingDeposits(ctx context.Context, limit int) ([]*model.UTRRequest, error)

	// Approve credits amount and closes the user's pending requests.
	Approve(ctx context.Context, userID, amount int64) (int64, error)
	Reject(ctx context.Context, userID int64) error

	CreditFromGateway(ctx context.Context, gateway string, ev *adapter.PaymentEvent) (int64, error)
	AdminAdd(ctx context.Context, userID, amount int64) (int64, error)
}

type walletUC struct {
	users    repository.UserRepository
	utrs     repository.UTRRepository
	payments repository.PaymentRepository
	states   repository.StateRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewWalletUseCase(
	users repository.UserRepository,
	utrs repository.UTRRepository,
	payments repository.PaymentRepository,
	states repository.StateRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *walletUC {
	return &walletUC{users: users, utrs: utrs, payments: payments, states: states, tm: tm, log: logger}
}

func (u *walletUC) Balance(ctx context.Context, userID int64) (int64, error) {
	if err := u.users.Ensure(ctx, repository.NoTX, userID); err != nil {
		return 0, err
	}
	w, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (u *walletUC) BeginDeposit(ctx context.Context, userID int64) error {
	return u.states.SetState(ctx, userID, model.DepositToDialogue(model.DepositAwaitingUTR{}))
}

func (u *walletUC) CancelDeposit(ctx context.Context, userID int64) error {
	return u.states.ClearState(ctx, userID)
}

func (u *walletUC) depositState(ctx context.Context, userID int64) (model.DepositState, error) {
	d, err := u.states.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return model.DepositFromDialogue(d), nil
}

// SubmitUTR records the transfer reference. A short reference keeps the
// dialogue at the same step.
func (u *walletUC) SubmitUTR(ctx context.Context, userID int64, utr string) error {
	st, err := u.depositState(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := st.(model.DepositAwaitingUTR); !ok {
		return domain.ErrNoDialogue
	}
	utr = strings.TrimSpace(utr)
	if len(utr) < model.MinUTRLength {
		return domain.ErrInvalidUTR
	}
	return u.states.SetState(ctx, userID, model.DepositToDialogue(model.DepositAwaitingAmount{UTR: utr}))
}

func (u *walletUC) SubmitAmount(ctx context.Context, userID int64, raw string) (*model.UTRRequest, error) {
	defer logging.TraceDuration(u.log, "WalletUC.SubmitAmount")()

	st, err := u.depositState(ctx, userID)
	if err != nil {
		return nil, err
	}
	awaiting, ok := st.(model.DepositAwaitingAmount)
	if !ok {
		return nil, domain.ErrNoDialogue
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "₹")), 10, 64)
	if err != nil || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	req, err := model.NewUTRRequest(userID, awaiting.UTR, amount)
	if err != nil {
		return nil, err
	}
	if err := u.utrs.Save(ctx, repository.NoTX, req); err != nil {
		return nil, err
	}
	_ = u.states.ClearState(ctx, userID)
	metrics.IncPayment("utr", "requested")
	u.log.Info().Int64("tg_id", userID).Str("utr_id", req.ID).Int64("amount", amount).Msg("deposit claim submitted")
	return req, nil
}

func (u *walletUC) PendingDeposits(ctx context.Context, limit int) ([]*model.UTRRequest, error) {
	return u.utrs.ListPending(ctx, repository.NoTX, limit)
}

func (u *walletUC) Approve(ctx context.Context, userID, amount int64) (int64, error) {
	defer logging.TraceDuration(u.log, "WalletUC.Approve")()

	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var bal int64
	err := u.tm.WithTx(ctx, lockingTx, func(ctx context.Context, tx repository.Tx) error {
		n, err := u.utrs.Resolve(ctx, tx, userID, model.UTRStatusApproved)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNoPendingDeposit
		}
		bal, err = u.users.AddBalance(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.IncPayment("utr", "approved")
	metrics.AddCredited("utr", amount)
	u.log.Info().Int64("tg_id", userID).Int64("amount", amount).Msg("deposit approved")
	return bal, nil
}

func (u *walletUC) Reject(ctx context.Context, userID int64) error {
	n, err := u.utrs.Resolve(ctx, repository.NoTX, userID, model.UTRStatusRejected)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNoPendingDeposit
	}
	metrics.IncPayment("utr", "rejected")
	u.log.Info().Int64("tg_id", userID).Msg("deposit rejected")
	return nil
}

// CreditFromGateway applies a captured gateway payment exactly once per
// payment ID.
func (u *walletUC) CreditFromGateway(ctx context.Context, gateway string, ev *adapter.PaymentEvent) (int64, error) {
	defer logging.TraceDuration(u.log, "WalletUC.CreditFromGateway")()

	if ev == nil || ev.UserID <= 0 || ev.Amount <= 0 || ev.PaymentID == "" {
		return 0, domain.ErrInvalidArgument
	}
	var bal int64
	err := u.tm.WithTx(ctx, lockingTx, func(ctx context.Context, tx repository.Tx) error {
		rec := &repository.GatewayPayment{ID: ev.PaymentID, Gateway: gateway, UserID: ev.UserID, Amount: ev.Amount}
		if err := u.payments.Record(ctx, tx, rec); err != nil {
			return err
		}
		var err error
		bal, err = u.users.AddBalance(ctx, tx, ev.UserID, ev.Amount)
		return err
	})
	if errors.Is(err, domain.ErrDuplicatePayment) {
		metrics.IncPayment(gateway, "duplicate")
		return 0, err
	}
	if err != nil {
		metrics.IncPayment(gateway, "failed")
		return 0, err
	}
	metrics.IncPayment(gateway, "credited")
	metrics.AddCredited(gateway, ev.Amount)
	u.log.Info().Int64("tg_id", ev.UserID).Str("payment_id", ev.PaymentID).Int64("amount", ev.Amount).Msg("gateway payment credited")
	return bal, nil
}

func (u *walletUC) AdminAdd(ctx context.Context, userID, amount int64) (int64, error) {
	if userID <= 0 || amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	bal, err := u.users.AddBalance(ctx, repository.NoTX, userID, amount)
	if err != nil {
		return 0, err
	}
	metrics.IncPayment("admin", "credited")
	metrics.AddCredited("admin", amount)
	return bal, nil
}
