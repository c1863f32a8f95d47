package telegram

import (
	"context"
	"errors"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/infra/logging"
)

// errorKeys maps domain errors to catalogue keys. Order matters: the first
// match wins.
type errorKeys []struct {
	err error
	key string
}

var (
	purchaseErrors = errorKeys{
		{domain.ErrOutOfStock, "error_out_of_stock"},
		{domain.ErrPendingPurchaseExists, "error_pending_exists"},
		{domain.ErrNoPendingPurchase, "error_no_pending"},
		{domain.ErrPurchaseNotPending, "error_not_pending"},
		{domain.ErrConnectTimeout, "error_timeout"},
	}
	onboardingErrors = errorKeys{
		{domain.ErrInvalidArgument, "onboard_invalid_phone"},
		{domain.ErrAlreadyExists, "onboard_exists"},
		{domain.ErrBusy, "onboard_busy"},
		{domain.ErrConnectTimeout, "error_timeout"},
	}
	depositErrors = errorKeys{
		{domain.ErrInvalidUTR, "utr_invalid"},
		{domain.ErrInvalidArgument, "amount_invalid"},
		{domain.ErrNoPendingDeposit, "error_no_deposit"},
	}
	adminErrors = errorKeys{
		{domain.ErrNotFound, "error_not_found"},
		{domain.ErrInvalidArgument, "usage_logout"},
		{domain.ErrNoPendingDeposit, "error_no_deposit"},
	}
)

func (ks errorKeys) lookup(err error) (string, bool) {
	for _, k := range ks {
		if errors.Is(err, k.err) {
			return k.key, true
		}
	}
	return "", false
}

// replyError answers with the mapped message, or the generic one after
// logging anything unexpected.
func (r *RealTelegramBotAdapter) replyError(ctx context.Context, chatID int64, err error, keys errorKeys) error {
	if key, ok := keys.lookup(err); ok {
		return r.reply(ctx, chatID, key)
	}
	logging.With(ctx, r.log).Error().Err(err).Msg("request failed")
	return r.reply(ctx, chatID, "error_generic")
}

// replyOnboardingError shows provider failures verbatim to the owner.
func (r *RealTelegramBotAdapter) replyOnboardingError(ctx context.Context, chatID int64, err error) error {
	if key, ok := onboardingErrors.lookup(err); ok {
		return r.reply(ctx, chatID, key)
	}
	if errors.Is(err, domain.ErrNoDialogue) {
		return r.reply(ctx, chatID, "error_generic")
	}
	return r.reply(ctx, chatID, "onboard_failed", err.Error())
}
