//go:build !integration

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-otp-marketplace/internal/application"
	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/i18n"
	"telegram-otp-marketplace/internal/usecase"
)

const (
	ownerID = int64(777)
	buyerID = int64(42)
)

type apiCall struct {
	method string
	form   url.Values
}

// fakeBotAPI answers Bot API calls and records them.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, form: r.PostForm})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"shop","username":"shop_bot"}}`)
	case "sendMessage":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":%s,"type":"private"}}}`, r.PostForm.Get("chat_id"))
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) sent(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []url.Values
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c.form)
		}
	}
	return out
}

type memStates struct {
	mu sync.Mutex
	m  map[int64]*model.Dialogue
}

func (s *memStates) SetState(_ context.Context, id int64, d *model.Dialogue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = d
	return nil
}

func (s *memStates) GetState(_ context.Context, id int64) (*model.Dialogue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id], nil
}

func (s *memStates) ClearState(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

type fakeWallet struct {
	usecase.WalletUseCase
	balance  int64
	approved [][2]int64
}

func (w *fakeWallet) Balance(context.Context, int64) (int64, error) { return w.balance, nil }

func (w *fakeWallet) Approve(_ context.Context, userID, amount int64) (int64, error) {
	w.approved = append(w.approved, [2]int64{userID, amount})
	return w.balance + amount, nil
}

func (w *fakeWallet) SubmitAmount(_ context.Context, userID int64, raw string) (*model.UTRRequest, error) {
	return model.NewUTRRequest(userID, "UTR12345678", 100)
}

type fakePurchases struct {
	usecase.PurchaseUseCase
	buyErr error
}

func (p *fakePurchases) Buy(context.Context, int64) (*usecase.BuyResult, error) {
	if p.buyErr != nil {
		return nil, p.buyErr
	}
	return &usecase.BuyResult{Purchase: &model.Purchase{Number: "+15550001"}}, nil
}

func (p *fakePurchases) Price() int64 { return 45 }

type fixture struct {
	api       *fakeBotAPI
	bot       *RealTelegramBotAdapter
	wallet    *fakeWallet
	purchases *fakePurchases
	states    *memStates
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tg, err := tgbotapi.NewBotAPIWithClient("TOKEN", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLang)
	require.NoError(t, err)

	cfg := &config.Config{
		Bot:  config.BotConfig{OwnerID: ownerID, OwnerUsername: "@owner", SendRate: 1000, SendBurst: 100, Workers: 1},
		Shop: config.ShopConfig{Price: 45, UPIID: "shop@upi"},
	}
	logger := zerolog.Nop()
	bot, err := newAdapter(tg, cfg, tr, nil, nil, &logger)
	require.NoError(t, err)

	f := &fixture{
		api:       api,
		bot:       bot,
		wallet:    &fakeWallet{balance: 5},
		purchases: &fakePurchases{},
		states:    &memStates{m: map[int64]*model.Dialogue{}},
	}
	bot.SetFacade(application.NewBotFacade(f.purchases, f.wallet, nil, nil, nil, nil, f.states))
	return f
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from, UserName: "buyer"},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callbackUpdate(from int64, data string, msg *tgbotapi.Message) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: from},
		Data:    data,
		Message: msg,
	}}
}

func TestSendMessageBuildsInlineKeyboard(t *testing.T) {
	f := newFixture(t)
	err := f.bot.SendMessage(context.Background(), adapter.SendMessageParams{
		ChatID:      ownerID,
		Text:        "review",
		ReplyMarkup: adapter.ReviewButtons(5, 100, "ok", "no"),
	})
	require.NoError(t, err)

	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "777", sent[0].Get("chat_id"))

	var kb tgbotapi.InlineKeyboardMarkup
	require.NoError(t, json.Unmarshal([]byte(sent[0].Get("reply_markup")), &kb))
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
	assert.Equal(t, "approve:5:100", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:5", *kb.InlineKeyboard[0][1].CallbackData)
}

func TestNotifyOTP(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bot.NotifyOTP(context.Background(), buyerID, "+15550001", "482910"))

	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Get("chat_id"))
	assert.Equal(t, tgbotapi.ModeMarkdown, sent[0].Get("parse_mode"))
	assert.Contains(t, sent[0].Get("text"), "482910")
	assert.Contains(t, sent[0].Get("text"), "+15550001")
}

func TestCommands(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.bot.handleUpdate(context.Background(), commandUpdate(buyerID, "/ping")))
		sent := f.api.sent("sendMessage")
		require.Len(t, sent, 1)
		assert.Equal(t, f.bot.translator.T("pong"), sent[0].Get("text"))
	})

	t.Run("owner command refused for buyers", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.bot.handleUpdate(context.Background(), commandUpdate(buyerID, "/addbal 100")))
		sent := f.api.sent("sendMessage")
		require.Len(t, sent, 1)
		assert.Equal(t, f.bot.translator.T("error_unauthorized"), sent[0].Get("text"))
	})

	t.Run("start shows owner panel to owner", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.bot.handleUpdate(context.Background(), commandUpdate(ownerID, "/start")))
		sent := f.api.sent("sendMessage")
		require.Len(t, sent, 1)
		assert.Equal(t, f.bot.translator.T("owner_panel"), sent[0].Get("text"))
		assert.Contains(t, sent[0].Get("reply_markup"), "add_account")
	})
}

func TestGetAccountInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.purchases.buyErr = domain.ErrInsufficientBalance

	upd := callbackUpdate(buyerID, "get_account", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: buyerID}})
	require.NoError(t, f.bot.handleUpdate(context.Background(), upd))

	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, f.bot.translator.T("error_insufficient_balance", 45, 5, 40), sent[0].Get("text"))
	assert.Len(t, f.api.sent("answerCallbackQuery"), 1)
}

func TestGetAccountAssignsNumber(t *testing.T) {
	f := newFixture(t)
	upd := callbackUpdate(buyerID, "get_account", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: buyerID}})
	require.NoError(t, f.bot.handleUpdate(context.Background(), upd))

	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Get("text"), "+15550001")
	assert.Contains(t, sent[0].Get("reply_markup"), "get_otp")
}

func TestApproveCallback(t *testing.T) {
	f := newFixture(t)
	review := &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: ownerID}, Text: "claim"}

	require.NoError(t, f.bot.handleUpdate(context.Background(), callbackUpdate(ownerID, "approve:42:100", review)))

	assert.Equal(t, [][2]int64{{buyerID, 100}}, f.wallet.approved)
	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Get("chat_id"))
	assert.Equal(t, f.bot.translator.T("deposit_approved", 100), sent[0].Get("text"))

	edits := f.api.sent("editMessageText")
	require.Len(t, edits, 1)
	assert.True(t, strings.HasPrefix(edits[0].Get("text"), "claim\n\n"))
}

func TestApproveCallbackRefusedForBuyer(t *testing.T) {
	f := newFixture(t)
	upd := callbackUpdate(buyerID, "approve:42:100", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: buyerID}})
	require.NoError(t, f.bot.handleUpdate(context.Background(), upd))
	assert.Empty(t, f.wallet.approved)
}

func TestDepositAmountNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	f.states.m[buyerID] = model.DepositToDialogue(model.DepositAwaitingAmount{UTR: "UTR12345678"})

	upd := tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: buyerID, UserName: "buyer"},
		Chat: &tgbotapi.Chat{ID: buyerID},
		Text: "100",
	}}
	require.NoError(t, f.bot.handleUpdate(context.Background(), upd))

	sent := f.api.sent("sendMessage")
	require.Len(t, sent, 2)
	assert.Equal(t, "777", sent[0].Get("chat_id"))
	assert.Contains(t, sent[0].Get("text"), "UTR12345678")
	assert.Contains(t, sent[0].Get("reply_markup"), "approve:42:100")
	assert.Equal(t, f.bot.translator.T("deposit_submitted"), sent[1].Get("text"))
}

func TestParseAddBalance(t *testing.T) {
	tests := []struct {
		args   string
		target int64
		amount int64
		ok     bool
	}{
		{"100", ownerID, 100, true},
		{"₹50", ownerID, 50, true},
		{"42 25", buyerID, 25, true},
		{"", 0, 0, false},
		{"-5", 0, 0, false},
		{"x 5", 0, 0, false},
		{"1 2 3", 0, 0, false},
	}
	for _, tt := range tests {
		target, amount, err := parseAddBalance(ownerID, tt.args)
		if !tt.ok {
			assert.ErrorIs(t, err, domain.ErrInvalidArgument, tt.args)
			continue
		}
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.target, target, tt.args)
		assert.Equal(t, tt.amount, amount, tt.args)
	}
}

func TestParseApprove(t *testing.T) {
	uid, amount, err := parseApprove("approve:5:100")
	require.NoError(t, err)
	assert.Equal(t, int64(5), uid)
	assert.Equal(t, int64(100), amount)

	for _, bad := range []string{"approve:5", "approve:x:1", "approve:5:0", "approve:5:1:2"} {
		_, _, err := parseApprove(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, bad)
	}
}

func TestErrorKeys(t *testing.T) {
	key, ok := purchaseErrors.lookup(fmt.Errorf("buy: %w", domain.ErrOutOfStock))
	assert.True(t, ok)
	assert.Equal(t, "error_out_of_stock", key)

	_, ok = purchaseErrors.lookup(fmt.Errorf("boom"))
	assert.False(t, ok)
}
