package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

var (
	_ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)
	_ adapter.Notifier           = (*NoopBotAdapter)(nil)
)

// NoopBotAdapter logs outbound messages instead of sending them. Used in dev
// runs without a bot token.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "noop_bot").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := b.log.Info().Int64("chat_id", params.ChatID).Str("text", params.Text)
	if params.ReplyMarkup != nil {
		ev = ev.Interface("buttons", params.ReplyMarkup.Buttons)
	}
	ev.Msg("send message")
	return nil
}

func (b *NoopBotAdapter) NotifyOTP(ctx context.Context, buyerID int64, phone, code string) error {
	return b.SendMessage(ctx, adapter.SendMessageParams{ChatID: buyerID, Text: "OTP " + code + " for " + phone})
}
