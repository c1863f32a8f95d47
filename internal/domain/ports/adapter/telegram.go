package adapter

import (
	"context"
	"fmt"
)

type Button struct {
	Text string
	Data string
	URL  string
}

type ReplyMarkup struct {
	Buttons  [][]Button
	IsInline bool
}

type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyMarkup *ReplyMarkup
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
}

// Notifier delivers extracted codes to buyers. Delivery is attempted once.
type Notifier interface {
	NotifyOTP(ctx context.Context, buyerID int64, phone, code string) error
}

// ReviewButtons is the owner's approve/reject keyboard for a deposit claim.
// Callback data is "approve:<uid>:<amount>" and "reject:<uid>".
func ReviewButtons(userID, amount int64, approve, reject string) *ReplyMarkup {
	return &ReplyMarkup{IsInline: true, Buttons: [][]Button{{
		{Text: approve, Data: fmt.Sprintf("approve:%d:%d", userID, amount)},
		{Text: reject, Data: fmt.Sprintf("reject:%d", userID)},
	}}}
}
