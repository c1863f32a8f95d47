// Command seed registers session files already present in the session
// directory as stock and can optionally credit a wallet for testing.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/adapters/mtproto"
	pg "telegram-otp-marketplace/internal/infra/db/postgres"
	"telegram-otp-marketplace/internal/infra/logging"
)

func main() {
	// Declared before LoadConfig, which parses the command line.
	creditUser := flag.Int64("credit-user", 0, "telegram id to credit (optional)")
	creditAmount := flag.Int64("credit-amount", 0, "amount to credit in rupees")

	cfg, err := config.LoadConfig()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema")
	}

	store, err := mtproto.NewStore(cfg.Session, zap.NewNop())
	if err != nil {
		logger.Fatal().Err(err).Msg("session store")
	}
	stock := pg.NewPostgresStockRepo(pool)

	phones, err := store.StoredPhones()
	if err != nil {
		logger.Fatal().Err(err).Msg("list sessions")
	}
	added := 0
	for _, phone := range phones {
		_, err := stock.Find(ctx, repository.NoTX, phone)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, domain.ErrNotFound):
			logger.Fatal().Err(err).Str("phone", phone).Msg("find stock row")
		}
		if err := stock.Add(ctx, repository.NoTX, phone); err != nil {
			logger.Fatal().Err(err).Str("phone", phone).Msg("add stock row")
		}
		added++
		logger.Info().Str("phone", logging.Redact(phone, cfg.Runtime.Dev)).Msg("stock row added")
	}
	inStock, err := stock.CountByStatus(ctx, repository.NoTX, model.StockStatusInStock)
	if err != nil {
		logger.Fatal().Err(err).Msg("count stock")
	}
	logger.Info().Int("sessions", len(phones)).Int("added", added).Int("in_stock", inStock).Msg("stock seeded")

	if *creditUser != 0 && *creditAmount > 0 {
		bal, err := pg.NewPostgresUserRepo(pool).AddBalance(ctx, repository.NoTX, *creditUser, *creditAmount)
		if err != nil {
			logger.Fatal().Err(err).Msg("credit wallet")
		}
		logger.Info().Int64("user_id", *creditUser).Int64("amount", *creditAmount).Int64("balance", bal).Msg("wallet credited")
	}
}
