package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"telegram-otp-marketplace/internal/application"
	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/i18n"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
	red "telegram-otp-marketplace/internal/infra/redis"
)

var (
	_ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)
	_ adapter.Notifier           = (*RealTelegramBotAdapter)(nil)
)

const (
	commandsPerMinute  = 20
	callbacksPerMinute = 30
)

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.Config
	facade      *application.BotFacade
	translator  *i18n.Translator
	rateLimiter *red.RateLimiter
	limiter     *rate.Limiter
	linker      adapter.PaymentLinker
	log         *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

// NewRealTelegramBotAdapter connects to the Bot API. The facade is attached
// later with SetFacade because the listener manager needs the adapter as its
// notifier before the use cases exist.
func NewRealTelegramBotAdapter(
	cfg *config.Config,
	translator *i18n.Translator,
	rateLimiter *red.RateLimiter,
	linker adapter.PaymentLinker,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg, translator, rateLimiter, linker, logger)
}

func newAdapter(
	bot *tgbotapi.BotAPI,
	cfg *config.Config,
	translator *i18n.Translator,
	rateLimiter *red.RateLimiter,
	linker adapter.PaymentLinker,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	l := logger.With().Str("component", "telegram_bot").Logger()
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		translator:    translator,
		rateLimiter:   rateLimiter,
		limiter:       rate.NewLimiter(rate.Limit(cfg.Bot.SendRate), cfg.Bot.SendBurst),
		linker:        linker,
		log:           &l,
		updateWorkers: cfg.Bot.Workers,
	}, nil
}

func (r *RealTelegramBotAdapter) SetFacade(f *application.BotFacade) { r.facade = f }

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is nil")
	}
	workers := r.updateWorkers
	if workers <= 0 {
		workers = 5
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				r.dispatch(ctx, id, up)
			}
		}(i)
	}

	r.log.Info().Str("username", r.bot.Self.UserName).Int("workers", workers).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, worker int, up tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Int("worker", worker).Msg("update handler panicked")
		}
	}()
	ctx = logging.WithTraceID(ctx, fmt.Sprintf("upd-%d", up.UpdateID))
	if from := sender(up); from != nil {
		ctx = logging.WithTgID(ctx, from.ID)
	}
	if err := r.handleUpdate(ctx, up); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Int("worker", worker).Msg("update handling failed")
	}
}

// SendMessage implements adapter.TelegramBotAdapter. Outbound sends share
// one token bucket to stay under the Bot API flood limits.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(params.ChatID, params.Text)
	msg.ParseMode = params.ParseMode
	if kb := inlineKeyboard(params.ReplyMarkup); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := r.bot.Send(msg)
	return err
}

// NotifyOTP pushes a received code to its buyer.
func (r *RealTelegramBotAdapter) NotifyOTP(ctx context.Context, buyerID int64, phone, code string) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:    buyerID,
		Text:      r.translator.T("otp_push", phone, code),
		ParseMode: tgbotapi.ModeMarkdown,
	})
}

func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, key string, args ...interface{}) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: r.translator.T(key, args...)})
}

func (r *RealTelegramBotAdapter) replyMarkdown(ctx context.Context, chatID int64, markup *adapter.ReplyMarkup, key string, args ...interface{}) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:      chatID,
		Text:        r.translator.T(key, args...),
		ParseMode:   tgbotapi.ModeMarkdown,
		ReplyMarkup: markup,
	})
}

// appendToMessage edits a sent message, adding a line under its text.
func (r *RealTelegramBotAdapter) appendToMessage(msg *tgbotapi.Message, line string) error {
	if msg == nil || msg.Chat == nil {
		return nil
	}
	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, msg.MessageID, msg.Text+"\n\n"+line)
	_, err := r.bot.Request(edit)
	return err
}

func inlineKeyboard(m *adapter.ReplyMarkup) *tgbotapi.InlineKeyboardMarkup {
	if m == nil || len(m.Buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Buttons))
	for _, row := range m.Buttons {
		if len(row) == 0 {
			continue
		}
		kbRow := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kbRow = append(kbRow, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		rows = append(rows, kbRow)
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, userID int64, key string, limit int) bool {
	if r.rateLimiter == nil {
		return true
	}
	allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(userID, key), limit, time.Minute)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !allowed {
		metrics.IncRateLimitTriggered()
	}
	return allowed
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}

	command := "message"
	if msg.IsCommand() {
		command = msg.Command()
	}
	if !r.allow(ctx, msg.From.ID, command, commandsPerMinute) {
		return r.reply(ctx, msg.Chat.ID, "rate_limited")
	}

	if msg.IsCommand() {
		metrics.IncTelegramCommand("/" + command)
		if fn, ok := r.commandRoutes()[command]; ok {
			return fn(ctx, msg)
		}
		return r.reply(ctx, msg.Chat.ID, "help")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return r.handleText(ctx, msg)
}

// handleText routes free text into the sender's dialogue, if any.
func (r *RealTelegramBotAdapter) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	from := msg.From.ID
	chatID := msg.Chat.ID

	res, err := r.facade.HandleText(ctx, from, r.cfg.IsOwner(from), msg.Text)
	if res == nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("dialogue lookup failed")
		return r.reply(ctx, chatID, "error_generic")
	}

	switch res.Step {
	case application.StepNone:
		return r.sendMainMenu(ctx, msg)

	case application.StepOnboardingPhone:
		if err != nil {
			return r.replyOnboardingError(ctx, chatID, err)
		}
		if res.Onboarding.Added {
			return r.reply(ctx, chatID, "onboard_already_authorized", res.Onboarding.Phone)
		}
		return r.reply(ctx, chatID, "onboard_code_sent")

	case application.StepOnboardingCode:
		if err != nil {
			return r.replyOnboardingError(ctx, chatID, err)
		}
		return r.reply(ctx, chatID, "onboard_added", res.Onboarding.Phone)

	case application.StepDepositUTR:
		if err != nil {
			return r.replyError(ctx, chatID, err, depositErrors)
		}
		return r.reply(ctx, chatID, "amount_prompt")

	case application.StepDepositAmount:
		if err != nil {
			return r.replyError(ctx, chatID, err, depositErrors)
		}
		r.sendReview(ctx, msg.From, res.Deposit.UTR, res.Deposit.Amount)
		return r.reply(ctx, chatID, "deposit_submitted")
	}
	return nil
}

// sendReview asks the owner to approve or reject a deposit claim.
func (r *RealTelegramBotAdapter) sendReview(ctx context.Context, from *tgbotapi.User, utr string, amount int64) {
	username := from.UserName
	if username == "" {
		username = "N/A"
	}
	err := r.SendMessage(ctx, adapter.SendMessageParams{
		ChatID:      r.cfg.Bot.OwnerID,
		Text:        r.translator.T("deposit_review", from.ID, username, utr, amount),
		ReplyMarkup: adapter.ReviewButtons(from.ID, amount, r.translator.T("button_approve"), r.translator.T("button_reject")),
	})
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("owner review notification failed")
	}
}

func sender(up tgbotapi.Update) *tgbotapi.User {
	switch {
	case up.Message != nil:
		return up.Message.From
	case up.CallbackQuery != nil:
		return up.CallbackQuery.From
	}
	return nil
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	var chatID int64
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	} else {
		chatID = query.From.ID
	}
	if chatID == 0 {
		return nil
	}

	data := strings.TrimSpace(query.Data)
	if !r.allow(ctx, query.From.ID, "cb:"+callbackName(data), callbacksPerMinute) {
		return r.reply(ctx, chatID, "rate_limited")
	}

	cb := callback{chatID: chatID, from: query.From, data: data, message: query.Message}
	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, cb)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, cb)
		}
	}
	return fmt.Errorf("unknown callback data %q", data)
}

// callbackName drops arguments so rate-limit keys stay bounded.
func callbackName(data string) string {
	if i := strings.IndexByte(data, ':'); i >= 0 {
		return data[:i]
	}
	return data
}

func (r *RealTelegramBotAdapter) mainMenu() *adapter.ReplyMarkup {
	t := r.translator
	return &adapter.ReplyMarkup{IsInline: true, Buttons: [][]adapter.Button{
		{{Text: t.T("button_deposit"), Data: "deposit"}},
		{{Text: t.T("button_balance"), Data: "balance"}},
		{{Text: t.T("button_get_account"), Data: "get_account"}},
		{{Text: t.T("button_owner"), Data: "owner"}},
	}}
}

func (r *RealTelegramBotAdapter) ownerMenu() *adapter.ReplyMarkup {
	t := r.translator
	return &adapter.ReplyMarkup{IsInline: true, Buttons: [][]adapter.Button{
		{{Text: t.T("button_add_account"), Data: "add_account"}},
		{{Text: t.T("button_stock"), Data: "stock"}},
	}}
}

func (r *RealTelegramBotAdapter) otpMenu() *adapter.ReplyMarkup {
	t := r.translator
	return &adapter.ReplyMarkup{IsInline: true, Buttons: [][]adapter.Button{
		{{Text: t.T("button_get_otp"), Data: "get_otp"}},
		{{Text: t.T("button_cancel"), Data: "cancel"}},
	}}
}

// sendMainMenu shows the owner panel to owners and the shop menu to everyone else.
func (r *RealTelegramBotAdapter) sendMainMenu(ctx context.Context, msg *tgbotapi.Message) error {
	if r.cfg.IsOwner(msg.From.ID) {
		return r.SendMessage(ctx, adapter.SendMessageParams{
			ChatID: msg.Chat.ID, Text: r.translator.T("owner_panel"), ReplyMarkup: r.ownerMenu(),
		})
	}
	return r.SendMessage(ctx, adapter.SendMessageParams{
		ChatID: msg.Chat.ID, Text: r.translator.T("welcome"), ReplyMarkup: r.mainMenu(),
	})
}

func sendParams(chatID int64, text string) adapter.SendMessageParams {
	return adapter.SendMessageParams{ChatID: chatID, Text: text}
}
