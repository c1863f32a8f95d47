package usecase

import (
	"context"

	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/worker"

	"github.com/rs/zerolog"
)

type BroadcastUseCase interface {
	// BroadcastMessage queues message for every known user except skip and
	// returns how many were queued.
	BroadcastMessage(ctx context.Context, message string, skip int64) (int, error)
}

const broadcastPage = 500

type broadcastUC struct {
	users      repository.UserRepository
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	log        *zerolog.Logger
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	logger *zerolog.Logger,
) BroadcastUseCase {
	return &broadcastUC{
		users:      users,
		bot:        bot,
		workerPool: pool,
		log:        logger,
	}
}

// BroadcastMessage pages through users and hands one send task per user to
// the worker pool. Outbound pacing is the bot adapter's job.
func (uc *broadcastUC) BroadcastMessage(ctx context.Context, message string, skip int64) (int, error) {
	queued := 0
	var after int64
	for {
		ids, err := uc.users.ListIDs(ctx, repository.NoTX, after, broadcastPage)
		if err != nil {
			uc.log.Error().Err(err).Msg("Failed to page users for broadcast")
			return queued, err
		}
		for _, id := range ids {
			if id == skip {
				continue
			}
			if err := uc.workerPool.Submit(uc.createSendTask(id, message)); err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", id).Msg("Failed to submit broadcast task to worker pool")
				continue
			}
			queued++
		}
		if len(ids) < broadcastPage {
			break
		}
		after = ids[len(ids)-1]
	}
	uc.log.Info().Int("queued", queued).Msg("Broadcast queued")
	return queued, nil
}

// createSendTask creates a closure for the worker pool to execute.
func (uc *broadcastUC) createSendTask(telegramID int64, message string) worker.Task {
	return func(ctx context.Context) error {
		err := uc.bot.SendMessage(ctx, adapter.SendMessageParams{
			ChatID: telegramID,
			Text:   message,
		})
		if err != nil {
			// Usually the user blocked the bot.
			uc.log.Warn().Err(err).Int64("tg_id", telegramID).Msg("Failed to send broadcast message to user")
		}
		return nil
	}
}
