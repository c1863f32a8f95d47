package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/i18n"
	"telegram-otp-marketplace/internal/usecase"
)

const (
	requestTimeout = 15 * time.Second
	maxWebhookBody = 1 << 20
)

// Server exposes the gateway webhook, health and metrics endpoints and the
// owner admin API.
type Server struct {
	wallet     usecase.WalletUseCase
	inventory  usecase.InventoryUseCase
	verifier   adapter.WebhookVerifier
	bot        adapter.TelegramBotAdapter
	translator *i18n.Translator
	auth       *AuthManager
	log        *zerolog.Logger
}

func NewServer(
	wallet usecase.WalletUseCase,
	inventory usecase.InventoryUseCase,
	verifier adapter.WebhookVerifier,
	bot adapter.TelegramBotAdapter,
	translator *i18n.Translator,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "http_api").Logger()
	return &Server{
		wallet:     wallet,
		inventory:  inventory,
		verifier:   verifier,
		bot:        bot,
		translator: translator,
		auth:       auth,
		log:        &l,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/razorpay-webhook", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireOwner)
			r.Get("/stock", s.handleStock)
			r.Get("/listeners", s.handleListeners)
			r.Post("/listeners/{phone}/logout", s.handleLogout)
		})
	})
	return r
}

// ListenAndServe serves on port until ctx is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
