// File: internal/infra/adapters/payment/razorpay_gateway.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

var (
	_ adapter.WebhookVerifier = (*RazorpayGateway)(nil)
	_ adapter.PaymentLinker   = (*RazorpayGateway)(nil)
)

// EventPaymentCaptured is the only webhook event that credits a wallet.
const EventPaymentCaptured = "payment.captured"

// RazorpayGateway verifies Razorpay webhooks and creates payment links via
// the REST API (basic auth with the key pair). Amounts on the wire are paise.
type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	currency      string
	client        *http.Client
}

func NewRazorpayGateway(cfg config.PaymentConfig) (*RazorpayGateway, error) {
	rz := cfg.Razorpay
	if rz.WebhookSecret == "" {
		return nil, errors.New("razorpay webhook secret empty")
	}
	return &RazorpayGateway{
		keyID:         rz.KeyID,
		keySecret:     rz.KeySecret,
		webhookSecret: rz.WebhookSecret,
		baseURL:       strings.TrimRight(rz.BaseURL, "/"),
		currency:      rz.Currency,
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

// Sign returns the hex HMAC-SHA256 of payload under the webhook secret.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID     string         `json:"id"`
				Amount int64          `json:"amount"`
				Status string         `json:"status"`
				Notes  map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Verify checks the X-Razorpay-Signature header against the raw body and
// decodes it. Events other than payment.captured come back with only Event
// set so the caller can acknowledge them.
func (g *RazorpayGateway) Verify(payload []byte, signature string) (*adapter.PaymentEvent, error) {
	expected := Sign(g.webhookSecret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return nil, domain.ErrInvalidSignature
	}

	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: decode webhook: %v", domain.ErrInvalidArgument, err)
	}
	ev := &adapter.PaymentEvent{Event: body.Event}
	if body.Event != EventPaymentCaptured {
		return ev, nil
	}

	entity := body.Payload.Payment.Entity
	uid, err := noteUserID(entity.Notes)
	if err != nil {
		return nil, err
	}
	ev.PaymentID = entity.ID
	ev.UserID = uid
	ev.Amount = entity.Amount / 100
	return ev, nil
}

// noteUserID reads notes.user_id, which Razorpay echoes as a string or a number.
func noteUserID(notes map[string]any) (int64, error) {
	switch v := notes["user_id"].(type) {
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: notes.user_id %q", domain.ErrInvalidArgument, v)
		}
		return id, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: notes.user_id missing", domain.ErrInvalidArgument)
	}
}

// CreatePaymentLink calls POST /payment_links with the buyer's ID in notes.
func (g *RazorpayGateway) CreatePaymentLink(ctx context.Context, userID, amount int64) (*adapter.PaymentLink, error) {
	if g.keyID == "" || g.keySecret == "" {
		return nil, errors.New("razorpay key pair not configured")
	}
	if userID <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	payload := map[string]any{
		"amount":      amount * 100,
		"currency":    g.currency,
		"description": "Wallet top-up",
		"notes":       map[string]string{"user_id": strconv.FormatInt(userID, 10)},
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payment_links", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay payment link http %d", resp.StatusCode)
	}
	var out struct {
		ID       string `json:"id"`
		ShortURL string `json:"short_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.ShortURL == "" {
		return nil, errors.New("razorpay payment link response incomplete")
	}
	return &adapter.PaymentLink{ID: out.ID, URL: out.ShortURL}, nil
}
