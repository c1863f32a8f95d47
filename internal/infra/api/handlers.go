package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
)

const signatureHeader = "X-Razorpay-Signature"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook credits captured gateway payments. Gateways retry on any
// non-2xx, so duplicates and ignored events are acknowledged with 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	if s.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "payments disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	ev, err := s.verifier.Verify(body, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		metrics.IncPayment(s.verifier.Name(), "bad_signature")
		log.Warn().Msg("webhook signature mismatch")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	case err != nil:
		log.Warn().Err(err).Msg("webhook rejected")
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if ev.PaymentID == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": ev.Event})
		return
	}

	bal, err := s.wallet.CreditFromGateway(r.Context(), s.verifier.Name(), ev)
	switch {
	case errors.Is(err, domain.ErrDuplicatePayment):
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	case err != nil:
		log.Error().Err(err).Str("payment_id", ev.PaymentID).Msg("credit failed")
		writeError(w, http.StatusInternalServerError, "credit failed")
		return
	}

	s.notifyCredit(r, ev, bal)
	writeJSON(w, http.StatusOK, map[string]any{"status": "credited", "balance": bal})
}

func (s *Server) notifyCredit(r *http.Request, ev *adapter.PaymentEvent, balance int64) {
	if s.bot == nil || s.translator == nil {
		return
	}
	err := s.bot.SendMessage(r.Context(), adapter.SendMessageParams{
		ChatID: ev.UserID,
		Text:   s.translator.T("gateway_credited", ev.Amount, balance),
	})
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Int64("tg_id", ev.UserID).Msg("credit notification failed")
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin api disabled")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.auth.CheckCredentials(req.Username, req.Password) {
		metrics.IncAdminCommand("api:login", "unauthorized")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok, exp, err := s.auth.Mint()
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("mint token failed")
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	metrics.IncAdminCommand("api:login", "authorized")
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp})
}

type stockItem struct {
	Phone   string    `json:"phone"`
	Status  string    `json:"status"`
	AddedAt time.Time `json:"added_at"`
}

type stockResponse struct {
	InStock   int         `json:"in_stock"`
	Assigned  int         `json:"assigned"`
	LoggedOut int         `json:"logged_out"`
	Listeners int         `json:"listeners"`
	Items     []stockItem `json:"items"`
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	sum, err := s.inventory.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stock")
		return
	}
	accounts, err := s.inventory.List(r.Context(), model.StockStatusInStock, model.StockStatusAssigned)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stock")
		return
	}
	resp := stockResponse{
		InStock:   sum.InStock,
		Assigned:  sum.Assigned,
		LoggedOut: sum.LoggedOut,
		Listeners: sum.Listeners,
		Items:     make([]stockItem, 0, len(accounts)),
	}
	for _, a := range accounts {
		resp.Items = append(resp.Items, stockItem{Phone: a.Phone, Status: string(a.Status), AddedAt: a.AddedAt})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListeners(w http.ResponseWriter, r *http.Request) {
	active := s.inventory.ActiveListeners()
	if active == nil {
		active = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(active), "phones": active})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	phone, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid phone")
		return
	}
	err = s.inventory.ForceLogout(r.Context(), phone)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid phone")
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "phone not in stock")
		return
	case err != nil:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("force logout failed")
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	metrics.IncAdminCommand("api:logout", "authorized")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out", "phone": model.NormalizePhone(phone)})
}
