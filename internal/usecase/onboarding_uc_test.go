//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/usecase"
)

const ownerID = int64(777)

type onboardingFixture struct {
	sessions  *MockSessionStore
	stock     *MockStockRepo
	states    *MockStateRepo
	listeners *MockListeners
	locker    *MockLocker
	uc        usecase.OnboardingUseCase
}

func newOnboardingFixture() *onboardingFixture {
	f := &onboardingFixture{
		sessions:  NewMockSessionStore(),
		stock:     NewMockStockRepo(),
		states:    NewMockStateRepo(),
		listeners: NewMockListeners(),
		locker:    NewMockLocker(),
	}
	f.uc = usecase.NewOnboardingUseCase(f.sessions, f.stock, f.states, f.listeners, f.locker, 0, false, newTestLogger())
	return f
}

func TestOnboarding_PhoneThenCode(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()

	require.NoError(t, f.uc.Begin(ctx, ownerID))

	res, err := f.uc.SubmitPhone(ctx, ownerID, "+1 (555) 000-1234")
	require.NoError(t, err)
	assert.True(t, res.AwaitingCode)
	assert.Equal(t, "+15550001234", res.Phone)

	d, _ := f.states.GetState(ctx, ownerID)
	assert.Equal(t, model.OnboardingAwaitingCode{Phone: "+15550001234", CodeHash: "hash-+15550001234"}, model.OnboardingFromDialogue(d))

	var gotCode string
	f.sessions.SignInFunc = func(ctx context.Context, phone, code, hash string) error {
		gotCode = code
		return nil
	}
	res, err = f.uc.SubmitCode(ctx, ownerID, "1 2 3-4 5")
	require.NoError(t, err)
	assert.Equal(t, "12345", gotCode)
	assert.True(t, res.Added)
	assert.True(t, res.ListenerStarted)
	assert.Equal(t, model.StockStatusInStock, f.stock.status("+15550001234"))

	d, _ = f.states.GetState(ctx, ownerID)
	assert.Nil(t, d)
	assert.Empty(t, f.locker.held)
}

func TestOnboarding_AlreadyAuthorized(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	f.sessions.SendCodeFunc = func(ctx context.Context, phone string) (adapter.CodeRequest, error) {
		return adapter.CodeRequest{AlreadyAuthorized: true}, nil
	}

	require.NoError(t, f.uc.Begin(ctx, ownerID))
	res, err := f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.False(t, res.AwaitingCode)
	assert.Equal(t, []string{"+15550001234"}, f.listeners.Starts)
}

func TestOnboarding_InvalidPhoneKeepsDialogue(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	require.NoError(t, f.uc.Begin(ctx, ownerID))

	_, err := f.uc.SubmitPhone(ctx, ownerID, "call me")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	d, _ := f.states.GetState(ctx, ownerID)
	assert.Equal(t, model.OnboardingAwaitingPhone{}, model.OnboardingFromDialogue(d))
}

func TestOnboarding_ExistingPhoneRejected(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	require.NoError(t, f.stock.Add(ctx, nil, "+15550001234"))
	require.NoError(t, f.uc.Begin(ctx, ownerID))

	_, err := f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestOnboarding_AuthFailureClearsState(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	f.sessions.SignInFunc = func(ctx context.Context, phone, code, hash string) error {
		return domain.ErrPasswordRequired
	}

	require.NoError(t, f.uc.Begin(ctx, ownerID))
	_, err := f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	require.NoError(t, err)

	_, err = f.uc.SubmitCode(ctx, ownerID, "12345")
	assert.ErrorIs(t, err, domain.ErrPasswordRequired)

	d, _ := f.states.GetState(ctx, ownerID)
	assert.Nil(t, d)
	assert.Equal(t, []string{"+15550001234"}, f.sessions.removed())
	_, err = f.stock.Find(ctx, nil, "+15550001234")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.listeners.Starts)
}

func TestOnboarding_SendCodeFailureEndsDialogue(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	boom := errors.New("FLOOD_WAIT")
	f.sessions.SendCodeFunc = func(ctx context.Context, phone string) (adapter.CodeRequest, error) {
		return adapter.CodeRequest{}, boom
	}

	require.NoError(t, f.uc.Begin(ctx, ownerID))
	_, err := f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	assert.ErrorIs(t, err, boom)

	d, _ := f.states.GetState(ctx, ownerID)
	assert.Nil(t, d)
}

func TestOnboarding_ConcurrentOnboardingIsBusy(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()
	_, err := f.locker.TryLock(ctx, "lock:onboard:+15550001234", 0)
	require.NoError(t, err)

	require.NoError(t, f.uc.Begin(ctx, ownerID))
	_, err = f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestOnboarding_NoDialogue(t *testing.T) {
	ctx := context.Background()
	f := newOnboardingFixture()

	_, err := f.uc.SubmitPhone(ctx, ownerID, "+15550001234")
	assert.ErrorIs(t, err, domain.ErrNoDialogue)
	_, err = f.uc.SubmitCode(ctx, ownerID, "12345")
	assert.ErrorIs(t, err, domain.ErrNoDialogue)
}
