package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
	"telegram-otp-marketplace/internal/usecase"
)

type callback struct {
	chatID  int64
	from    *tgbotapi.User
	data    string
	message *tgbotapi.Message
}

type cbHandler func(ctx context.Context, cb callback) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		"deposit":     r.depositCBRoute,
		"balance":     r.balanceCBRoute,
		"owner":       r.ownerCBRoute,
		"get_account": r.getAccountCBRoute,
		"get_otp":     r.getOTPCBRoute,
		"cancel":      r.cancelCBRoute,

		"add_account": r.ownerCB(r.addAccountCBRoute),
		"stock":       r.ownerCB(r.stockCBRoute),
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "approve:", Fn: r.ownerCB(r.approveCBRoute)},
		{Prefix: "reject:", Fn: r.ownerCB(r.rejectCBRoute)},
	}
}

func (r *RealTelegramBotAdapter) ownerCB(next cbHandler) cbHandler {
	return func(ctx context.Context, cb callback) error {
		name := "cb:" + callbackName(cb.data)
		if !r.cfg.IsOwner(cb.from.ID) {
			metrics.IncAdminCommand(name, "unauthorized")
			return r.reply(ctx, cb.chatID, "error_unauthorized")
		}
		metrics.IncAdminCommand(name, "authorized")
		return next(ctx, cb)
	}
}

// depositCBRoute opens the UTR dialogue. When a gateway is configured an
// online payment link is offered alongside.
func (r *RealTelegramBotAdapter) depositCBRoute(ctx context.Context, cb callback) error {
	if err := r.facade.Wallet.BeginDeposit(ctx, cb.from.ID); err != nil {
		return r.replyError(ctx, cb.chatID, err, nil)
	}

	var markup *adapter.ReplyMarkup
	if r.linker != nil && r.cfg.Shop.Price > 0 {
		link, err := r.linker.CreatePaymentLink(ctx, cb.from.ID, r.cfg.Shop.Price)
		if err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Str("gateway", r.linker.Name()).Msg("payment link failed")
		} else {
			markup = &adapter.ReplyMarkup{IsInline: true, Buttons: [][]adapter.Button{
				{{Text: r.translator.T("button_pay_online"), URL: link.URL}},
			}}
		}
	}
	if upi := r.cfg.Shop.UPIID; upi != "" {
		return r.replyMarkdown(ctx, cb.chatID, markup, "deposit_prompt", upi)
	}
	return r.replyMarkdown(ctx, cb.chatID, markup, "deposit_prompt_no_upi")
}

func (r *RealTelegramBotAdapter) balanceCBRoute(ctx context.Context, cb callback) error {
	bal, err := r.facade.Wallet.Balance(ctx, cb.from.ID)
	if err != nil {
		return r.replyError(ctx, cb.chatID, err, nil)
	}
	return r.reply(ctx, cb.chatID, "balance", bal)
}

func (r *RealTelegramBotAdapter) ownerCBRoute(ctx context.Context, cb callback) error {
	return r.reply(ctx, cb.chatID, "owner_contact", r.cfg.Bot.OwnerUsername)
}

func (r *RealTelegramBotAdapter) getAccountCBRoute(ctx context.Context, cb callback) error {
	res, err := r.facade.Purchases.Buy(ctx, cb.from.ID)
	if errors.Is(err, domain.ErrInsufficientBalance) {
		price := r.facade.Purchases.Price()
		bal, berr := r.facade.Wallet.Balance(ctx, cb.from.ID)
		if berr != nil {
			return r.replyError(ctx, cb.chatID, berr, nil)
		}
		return r.reply(ctx, cb.chatID, "error_insufficient_balance", price, bal, price-bal)
	}
	if err != nil {
		return r.replyError(ctx, cb.chatID, err, purchaseErrors)
	}
	key := "number_assigned"
	if res.ListenerErr != nil {
		key = "number_assigned_retry"
	}
	return r.replyMarkdown(ctx, cb.chatID, r.otpMenu(), key, res.Purchase.Number)
}

func (r *RealTelegramBotAdapter) getOTPCBRoute(ctx context.Context, cb callback) error {
	res, err := r.facade.Purchases.GetOTP(ctx, cb.from.ID)
	if err != nil {
		return r.replyError(ctx, cb.chatID, err, purchaseErrors)
	}
	if !res.Waiting() {
		return r.replyMarkdown(ctx, cb.chatID, nil, "otp_received", res.Purchase.Number, res.Code)
	}
	return r.replyMarkdown(ctx, cb.chatID, r.otpMenu(), "otp_waiting", res.Purchase.Number, r.listenerStatus(res))
}

func (r *RealTelegramBotAdapter) listenerStatus(res *usecase.OTPResult) string {
	switch {
	case res.ListenerErr != nil:
		return r.translator.T("otp_listener_failed")
	case res.ListenerStarted:
		return r.translator.T("otp_listener_starting")
	default:
		return r.translator.T("otp_listener_live")
	}
}

func (r *RealTelegramBotAdapter) cancelCBRoute(ctx context.Context, cb callback) error {
	res, err := r.facade.Purchases.Cancel(ctx, cb.from.ID)
	if err != nil {
		return r.replyError(ctx, cb.chatID, err, purchaseErrors)
	}
	return r.reply(ctx, cb.chatID, "cancel_done", res.Refunded, res.Balance)
}

func (r *RealTelegramBotAdapter) addAccountCBRoute(ctx context.Context, cb callback) error {
	if err := r.facade.Onboarding.Begin(ctx, cb.from.ID); err != nil {
		return r.replyError(ctx, cb.chatID, err, nil)
	}
	return r.reply(ctx, cb.chatID, "onboard_phone_prompt")
}

func (r *RealTelegramBotAdapter) stockCBRoute(ctx context.Context, cb callback) error {
	return r.sendStockSummary(ctx, cb.chatID)
}

// approveCBRoute handles "approve:<uid>:<amount>".
func (r *RealTelegramBotAdapter) approveCBRoute(ctx context.Context, cb callback) error {
	userID, amount, err := parseApprove(cb.data)
	if err != nil {
		return err
	}
	if _, err := r.facade.Wallet.Approve(ctx, userID, amount); err != nil {
		return r.replyError(ctx, cb.chatID, err, adminErrors)
	}
	if err := r.reply(ctx, userID, "deposit_approved", amount); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Int64("user_id", userID).Msg("approve notification failed")
	}
	return r.appendToMessage(cb.message, r.translator.T("review_approved", amount))
}

// rejectCBRoute handles "reject:<uid>".
func (r *RealTelegramBotAdapter) rejectCBRoute(ctx context.Context, cb callback) error {
	userID, err := strconv.ParseInt(strings.TrimPrefix(cb.data, "reject:"), 10, 64)
	if err != nil || userID <= 0 {
		return domain.ErrInvalidArgument
	}
	if err := r.facade.Wallet.Reject(ctx, userID); err != nil {
		return r.replyError(ctx, cb.chatID, err, adminErrors)
	}
	if err := r.reply(ctx, userID, "deposit_rejected"); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Int64("user_id", userID).Msg("reject notification failed")
	}
	return r.appendToMessage(cb.message, r.translator.T("review_rejected"))
}

func parseApprove(data string) (int64, int64, error) {
	parts := strings.Split(strings.TrimPrefix(data, "approve:"), ":")
	if len(parts) != 2 {
		return 0, 0, domain.ErrInvalidArgument
	}
	userID, err1 := strconv.ParseInt(parts[0], 10, 64)
	amount, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || userID <= 0 || amount <= 0 {
		return 0, 0, domain.ErrInvalidArgument
	}
	return userID, amount, nil
}
