package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"telegram-otp-marketplace/internal/application"
	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/infra/adapters/mtproto"
	payAdapters "telegram-otp-marketplace/internal/infra/adapters/payment"
	tele "telegram-otp-marketplace/internal/infra/adapters/telegram"
	"telegram-otp-marketplace/internal/infra/api"
	pg "telegram-otp-marketplace/internal/infra/db/postgres"
	"telegram-otp-marketplace/internal/infra/i18n"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
	red "telegram-otp-marketplace/internal/infra/redis"
	"telegram-otp-marketplace/internal/infra/sched"
	"telegram-otp-marketplace/internal/infra/worker"
	"telegram-otp-marketplace/internal/otp"
	"telegram-otp-marketplace/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// bot is what the rest of the process needs from the Telegram side.
type bot interface {
	adapter.TelegramBotAdapter
	adapter.Notifier
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("development mode: phone numbers and codes are not redacted")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exited with error")
	}
	logger.Info().Msg("bye")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	userRepo := pg.NewPostgresUserRepo(pool)
	purchaseRepo := pg.NewPostgresPurchaseRepo(pool)
	stockRepo := pg.NewPostgresStockRepo(pool)
	utrRepo := pg.NewPostgresUTRRepo(pool)
	paymentRepo := pg.NewPostgresPaymentRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Redis ----
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer rc.Close()
	stateRepo := red.NewStateRepo(rc, cfg.Redis.TTL)
	locker := red.NewLocker(rc)
	rateLimiter := red.NewRateLimiter(rc)

	// ---- Secondary sessions ----
	zl := zap.NewNop()
	if cfg.Runtime.Dev {
		if dl, err := zap.NewDevelopment(); err == nil {
			zl = dl
		}
	}
	defer func() { _ = zl.Sync() }()
	sessions, err := mtproto.NewStore(cfg.Session, zl)
	if err != nil {
		return err
	}

	translator, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLang)
	if err != nil {
		return err
	}

	// ---- Payments ----
	var (
		verifier adapter.WebhookVerifier
		linker   adapter.PaymentLinker
	)
	if cfg.Payment.Razorpay.WebhookSecret != "" {
		gw, err := payAdapters.NewRazorpayGateway(cfg.Payment)
		if err != nil {
			return err
		}
		verifier = gw
		if cfg.Payment.Razorpay.KeyID != "" {
			linker = gw
		}
	} else if cfg.Runtime.Dev {
		noop := payAdapters.NewNoopPaymentGateway()
		verifier, linker = noop, noop
	}

	// ---- Bot transport ----
	// The listener manager needs the bot as its notifier, and the bot needs
	// the facade, so the facade is attached after the use cases exist.
	var (
		tgBot   bot
		realBot *tele.RealTelegramBotAdapter
	)
	if cfg.Bot.Mode == config.ModeNoop {
		tgBot = tele.NewNoopBotAdapter(logger)
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(cfg, translator, rateLimiter, linker, logger)
		if err != nil {
			return err
		}
		tgBot = realBot
	}

	// ---- OTP listeners ----
	manager := otp.NewManager(otp.Config{
		GracePeriod:    cfg.Session.GracePeriod,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		CallTimeout:    cfg.Session.CallTimeout,
		Dev:            cfg.Runtime.Dev,
	}, sessions, purchaseRepo, stockRepo, tgBot, logger)

	// ---- Use cases ----
	workers := worker.NewPool(cfg.Bot.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	purchaseUC := usecase.NewPurchaseUseCase(userRepo, purchaseRepo, stockRepo, txManager, manager, cfg.Shop.Price, logger)
	walletUC := usecase.NewWalletUseCase(userRepo, utrRepo, paymentRepo, stateRepo, txManager, logger)
	inventoryUC := usecase.NewInventoryUseCase(stockRepo, purchaseRepo, sessions, manager, cfg.Runtime.Dev, logger)
	onboardingUC := usecase.NewOnboardingUseCase(sessions, stockRepo, stateRepo, manager, locker, cfg.Session.ConnectTimeout, cfg.Runtime.Dev, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, purchaseRepo, utrRepo, inventoryUC, logger)
	broadcastUC := usecase.NewBroadcastUseCase(userRepo, tgBot, workers, logger)
	alertUC := usecase.NewAlertUseCase(stockRepo, utrRepo, tgBot, cfg.Bot.OwnerID, cfg.Shop.LowStock, cfg.Scheduler.UTRReminderAfter, logger)

	facade := application.NewBotFacade(purchaseUC, walletUC, inventoryUC, onboardingUC, statsUC, broadcastUC, stateRepo)
	if realBot != nil {
		realBot.SetFacade(facade)
	}

	// ---- Warm start ----
	report, err := inventoryUC.WarmStart(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("warm start failed")
	} else {
		logger.Info().
			Int("started", report.Started).
			Int("removed", report.Removed).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("warm start finished")
	}

	// ---- Run ----
	g, gctx := errgroup.WithContext(ctx)
	if realBot != nil {
		g.Go(func() error { return realBot.StartPolling(gctx) })
	}
	if cfg.Admin.Port > 0 {
		auth := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.TokenTTL)
		srv := api.NewServer(walletUC, inventoryUC, verifier, tgBot, translator, auth, logger)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Admin.Port) })
	}
	g.Go(func() error {
		return sched.NewNotificationWorker(cfg.Scheduler.StockCheckInterval, alertUC, logger).Run(gctx)
	})
	g.Go(func() error {
		return sched.NewGaugeWorker(time.Minute, inventoryUC, pool, logger).Run(gctx)
	})

	logger.Info().Str("version", version).Str("mode", cfg.Bot.Mode).Msg("service started")
	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := manager.Shutdown(shutdownCtx); serr != nil {
		logger.Warn().Err(serr).Msg("listener shutdown incomplete")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
