// File: internal/usecase/onboarding_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/logging"
)

var _ OnboardingUseCase = (*onboardingUC)(nil)

// OnboardingUseCase drives the owner's "add account" dialogue: phone, then
// login code, then the phone joins the stock with a warm listener.
type OnboardingUseCase interface {
	Begin(ctx context.Context, ownerID int64) error
	SubmitPhone(ctx context.Context, ownerID int64, phone string) (*OnboardingResult, error)
	SubmitCode(ctx context.Context, ownerID int64, code string) (*OnboardingResult, error)
	Abort(ctx context.Context, ownerID int64) error
}

type OnboardingResult struct {
	Phone string
	// Added is set once the phone is in stock.
	Added           bool
	AwaitingCode    bool
	ListenerStarted bool
}

type onboardingUC struct {
	sessions  adapter.SessionStore
	stock     repository.StockRepository
	states    repository.StateRepository
	listeners ListenerController
	locker    Locker
	timeout   time.Duration
	dev       bool
	log       *zerolog.Logger
}

func NewOnboardingUseCase(
	sessions adapter.SessionStore,
	stock repository.StockRepository,
	states repository.StateRepository,
	listeners ListenerController,
	locker Locker,
	timeout time.Duration,
	dev bool,
	logger *zerolog.Logger,
) *onboardingUC {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &onboardingUC{
		sessions:  sessions,
		stock:     stock,
		states:    states,
		listeners: listeners,
		locker:    locker,
		timeout:   timeout,
		dev:       dev,
		log:       logger,
	}
}

func onboardingLockKey(phone string) string { return "lock:onboard:" + phone }

func (u *onboardingUC) Begin(ctx context.Context, ownerID int64) error {
	return u.states.SetState(ctx, ownerID, model.OnboardingToDialogue(model.OnboardingAwaitingPhone{}))
}

func (u *onboardingUC) Abort(ctx context.Context, ownerID int64) error {
	return u.states.ClearState(ctx, ownerID)
}

func (u *onboardingUC) state(ctx context.Context, ownerID int64) (model.OnboardingState, error) {
	d, err := u.states.GetState(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return model.OnboardingFromDialogue(d), nil
}

// SubmitPhone asks Telegram for a login code. An invalid phone keeps the
// dialogue open; a provider failure ends it.
func (u *onboardingUC) SubmitPhone(ctx context.Context, ownerID int64, raw string) (*OnboardingResult, error) {
	defer logging.TraceDuration(u.log, "OnboardingUC.SubmitPhone")()

	st, err := u.state(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.(model.OnboardingAwaitingPhone); !ok {
		return nil, domain.ErrNoDialogue
	}

	phone := model.NormalizePhone(raw)
	if phone == "" {
		return nil, domain.ErrInvalidArgument
	}
	if acc, err := u.stock.Find(ctx, repository.NoTX, phone); err == nil && acc.Status != model.StockStatusLoggedOut {
		_ = u.states.ClearState(ctx, ownerID)
		return nil, domain.ErrAlreadyExists
	}

	token, err := u.locker.TryLock(ctx, onboardingLockKey(phone), 2*u.timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), onboardingLockKey(phone), token) }()

	cctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	req, err := u.sessions.SendCode(cctx, phone)
	if err != nil {
		_ = u.states.ClearState(ctx, ownerID)
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrConnectTimeout
		}
		u.log.Warn().Err(err).Str("phone", logging.Redact(phone, u.dev)).Msg("send code failed")
		return nil, err
	}

	if req.AlreadyAuthorized {
		_ = u.states.ClearState(ctx, ownerID)
		return u.addToStock(ctx, phone)
	}

	next := model.OnboardingAwaitingCode{Phone: phone, CodeHash: req.CodeHash}
	if err := u.states.SetState(ctx, ownerID, model.OnboardingToDialogue(next)); err != nil {
		return nil, err
	}
	return &OnboardingResult{Phone: phone, AwaitingCode: true}, nil
}

// SubmitCode completes the login. Any authentication failure ends the
// dialogue and is returned unchanged so the owner sees the provider message.
func (u *onboardingUC) SubmitCode(ctx context.Context, ownerID int64, raw string) (*OnboardingResult, error) {
	defer logging.TraceDuration(u.log, "OnboardingUC.SubmitCode")()

	st, err := u.state(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	awaiting, ok := st.(model.OnboardingAwaitingCode)
	if !ok {
		return nil, domain.ErrNoDialogue
	}

	code := digitsOnly(raw)
	if code == "" {
		return nil, domain.ErrInvalidArgument
	}
	// The dialogue ends here whatever the outcome.
	_ = u.states.ClearState(ctx, ownerID)

	token, err := u.locker.TryLock(ctx, onboardingLockKey(awaiting.Phone), 2*u.timeout)
	if err != nil {
		return nil, err
	}
	defer func() { _ = u.locker.Unlock(context.Background(), onboardingLockKey(awaiting.Phone), token) }()

	cctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.sessions.SignIn(cctx, awaiting.Phone, code, awaiting.CodeHash); err != nil {
		_ = u.sessions.RemoveSession(awaiting.Phone)
		u.log.Warn().Err(err).Str("phone", logging.Redact(awaiting.Phone, u.dev)).Msg("sign in failed")
		return nil, err
	}
	return u.addToStock(ctx, awaiting.Phone)
}

func (u *onboardingUC) addToStock(ctx context.Context, phone string) (*OnboardingResult, error) {
	if err := u.stock.Add(ctx, repository.NoTX, phone); err != nil {
		return nil, err
	}
	res := &OnboardingResult{Phone: phone, Added: true}
	started, err := u.listeners.Start(ctx, phone)
	if err != nil {
		u.log.Warn().Err(err).Str("phone", logging.Redact(phone, u.dev)).Msg("pre-warm listener failed")
	}
	res.ListenerStarted = started
	u.log.Info().Str("phone", logging.Redact(phone, u.dev)).Msg("phone added to stock")
	return res, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
