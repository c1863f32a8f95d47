package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   r.handleStartCommand,
		"ping":    r.handlePingCommand,
		"balance": r.handleBalanceCommand,
		"help":    r.handleHelpCommand,
		"cancel":  r.handleCancelCommand,

		"addbal":    r.ownerOnly(r.handleAddBalanceCommand),
		"stock":     r.ownerOnly(r.handleStockCommand),
		"logout":    r.ownerOnly(r.handleLogoutCommand),
		"listeners": r.ownerOnly(r.handleListenersCommand),
		"stats":     r.ownerOnly(r.handleStatsCommand),
		"broadcast": r.ownerOnly(r.handleBroadcastCommand),
	}
}

func (r *RealTelegramBotAdapter) ownerOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.cfg.IsOwner(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.reply(ctx, message.Chat.ID, "error_unauthorized")
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

// handleStartCommand registers the wallet and shows the menu.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	if _, err := r.facade.Wallet.Balance(ctx, message.From.ID); err != nil {
		return r.replyError(ctx, message.Chat.ID, err, nil)
	}
	_ = r.facade.CancelDialogue(ctx, message.From.ID)
	return r.sendMainMenu(ctx, message)
}

func (r *RealTelegramBotAdapter) handlePingCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.reply(ctx, message.Chat.ID, "pong")
}

func (r *RealTelegramBotAdapter) handleBalanceCommand(ctx context.Context, message *tgbotapi.Message) error {
	bal, err := r.facade.Wallet.Balance(ctx, message.From.ID)
	if err != nil {
		return r.replyError(ctx, message.Chat.ID, err, nil)
	}
	return r.reply(ctx, message.Chat.ID, "balance", bal)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	if r.cfg.IsOwner(message.From.ID) {
		return r.SendMessage(ctx, sendParams(message.Chat.ID, r.translator.T("help")+"\n\n"+r.translator.T("help_owner")))
	}
	return r.reply(ctx, message.Chat.ID, "help")
}

func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	if err := r.facade.CancelDialogue(ctx, message.From.ID); err != nil {
		return r.replyError(ctx, message.Chat.ID, err, nil)
	}
	return r.reply(ctx, message.Chat.ID, "dialogue_cancelled")
}

// handleAddBalanceCommand credits the owner's own wallet, or another user's
// when a user id is given first.
func (r *RealTelegramBotAdapter) handleAddBalanceCommand(ctx context.Context, message *tgbotapi.Message) error {
	target, amount, err := parseAddBalance(message.From.ID, message.CommandArguments())
	if err != nil {
		return r.reply(ctx, message.Chat.ID, "usage_addbal")
	}
	bal, err := r.facade.Wallet.AdminAdd(ctx, target, amount)
	if err != nil {
		return r.replyError(ctx, message.Chat.ID, err, adminErrors)
	}
	return r.reply(ctx, message.Chat.ID, "addbal_done", amount, target, bal)
}

func parseAddBalance(self int64, args string) (int64, int64, error) {
	fields := strings.Fields(args)
	target := self
	switch len(fields) {
	case 1:
	case 2:
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || id <= 0 {
			return 0, 0, domain.ErrInvalidArgument
		}
		target = id
		fields = fields[1:]
	default:
		return 0, 0, domain.ErrInvalidArgument
	}
	amount, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "₹"), 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, domain.ErrInvalidArgument
	}
	return target, amount, nil
}

func (r *RealTelegramBotAdapter) handleStockCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.sendStockSummary(ctx, message.Chat.ID)
}

func (r *RealTelegramBotAdapter) sendStockSummary(ctx context.Context, chatID int64) error {
	s, err := r.facade.Inventory.Summary(ctx)
	if err != nil {
		return r.replyError(ctx, chatID, err, nil)
	}
	return r.reply(ctx, chatID, "stock_summary", s.InStock, s.Assigned, s.LoggedOut, s.Listeners)
}

func (r *RealTelegramBotAdapter) handleLogoutCommand(ctx context.Context, message *tgbotapi.Message) error {
	phone := strings.TrimSpace(message.CommandArguments())
	if phone == "" {
		return r.reply(ctx, message.Chat.ID, "usage_logout")
	}
	if err := r.facade.Inventory.ForceLogout(ctx, phone); err != nil {
		return r.replyError(ctx, message.Chat.ID, err, adminErrors)
	}
	return r.reply(ctx, message.Chat.ID, "logout_done", phone)
}

func (r *RealTelegramBotAdapter) handleListenersCommand(ctx context.Context, message *tgbotapi.Message) error {
	active := r.facade.Inventory.ActiveListeners()
	if len(active) == 0 {
		return r.reply(ctx, message.Chat.ID, "listeners_none")
	}
	var b strings.Builder
	b.WriteString(r.translator.T("listeners_header", len(active)))
	for _, phone := range active {
		b.WriteString(fmt.Sprintf("\n• %s", phone))
	}
	return r.SendMessage(ctx, sendParams(message.Chat.ID, b.String()))
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleStats(ctx)
	if err != nil {
		return r.replyError(ctx, message.Chat.ID, err, nil)
	}
	return r.SendMessage(ctx, sendParams(message.Chat.ID, text))
}

func (r *RealTelegramBotAdapter) handleBroadcastCommand(ctx context.Context, message *tgbotapi.Message) error {
	n, err := r.facade.HandleBroadcast(ctx, message.From.ID, message.CommandArguments())
	if errors.Is(err, domain.ErrInvalidArgument) {
		return r.reply(ctx, message.Chat.ID, "usage_broadcast")
	}
	if err != nil {
		return r.replyError(ctx, message.Chat.ID, err, nil)
	}
	return r.reply(ctx, message.Chat.ID, "broadcast_queued", n)
}
