package application

import (
	"context"
	"fmt"
	"strings"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/usecase"
)

// BotFacade composes use cases into bot-level actions. The Telegram adapter
// renders what comes back; nothing here knows about keyboards or locales.
type BotFacade struct {
	Purchases  usecase.PurchaseUseCase
	Wallet     usecase.WalletUseCase
	Inventory  usecase.InventoryUseCase
	Onboarding usecase.OnboardingUseCase
	Stats      usecase.StatsUseCase
	Broadcast  usecase.BroadcastUseCase

	states repository.StateRepository
}

func NewBotFacade(
	purchases usecase.PurchaseUseCase,
	wallet usecase.WalletUseCase,
	inventory usecase.InventoryUseCase,
	onboarding usecase.OnboardingUseCase,
	stats usecase.StatsUseCase,
	broadcast usecase.BroadcastUseCase,
	states repository.StateRepository,
) *BotFacade {
	return &BotFacade{
		Purchases:  purchases,
		Wallet:     wallet,
		Inventory:  inventory,
		Onboarding: onboarding,
		Stats:      stats,
		Broadcast:  broadcast,
		states:     states,
	}
}

// DialogueStep names the step a free-text message was consumed by.
type DialogueStep int

const (
	StepNone DialogueStep = iota
	StepOnboardingPhone
	StepOnboardingCode
	StepDepositUTR
	StepDepositAmount
)

// DialogueResult is the outcome of a free-text message.
type DialogueResult struct {
	Step       DialogueStep
	Onboarding *usecase.OnboardingResult
	Deposit    *model.UTRRequest
}

// HandleText feeds a plain message to whichever dialogue the user is in.
// Onboarding is only honoured for owners. Step is StepNone when no dialogue
// is in progress.
func (b *BotFacade) HandleText(ctx context.Context, userID int64, owner bool, text string) (*DialogueResult, error) {
	d, err := b.states.GetState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load dialogue: %w", err)
	}
	if d == nil {
		return &DialogueResult{Step: StepNone}, nil
	}

	switch d.Flow {
	case model.FlowOnboarding:
		if !owner {
			_ = b.states.ClearState(ctx, userID)
			return &DialogueResult{Step: StepNone}, nil
		}
		switch model.OnboardingFromDialogue(d).(type) {
		case model.OnboardingAwaitingPhone:
			res, err := b.Onboarding.SubmitPhone(ctx, userID, text)
			return &DialogueResult{Step: StepOnboardingPhone, Onboarding: res}, err
		case model.OnboardingAwaitingCode:
			res, err := b.Onboarding.SubmitCode(ctx, userID, text)
			return &DialogueResult{Step: StepOnboardingCode, Onboarding: res}, err
		}
	case model.FlowDeposit:
		switch model.DepositFromDialogue(d).(type) {
		case model.DepositAwaitingUTR:
			return &DialogueResult{Step: StepDepositUTR}, b.Wallet.SubmitUTR(ctx, userID, text)
		case model.DepositAwaitingAmount:
			req, err := b.Wallet.SubmitAmount(ctx, userID, text)
			return &DialogueResult{Step: StepDepositAmount, Deposit: req}, err
		}
	}

	// Unreadable state; drop it so the user is not stuck.
	_ = b.states.ClearState(ctx, userID)
	return &DialogueResult{Step: StepNone}, nil
}

// CancelDialogue ends any dialogue in progress.
func (b *BotFacade) CancelDialogue(ctx context.Context, userID int64) error {
	return b.states.ClearState(ctx, userID)
}

// HandleStats builds the owner-facing stats text.
func (b *BotFacade) HandleStats(ctx context.Context) (string, error) {
	if b.Stats == nil {
		return "", fmt.Errorf("stats usecase not available")
	}
	s, err := b.Stats.Totals(ctx)
	if err != nil {
		return "", fmt.Errorf("get totals: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("📊 Statistics\n\n")
	sb.WriteString(fmt.Sprintf("👥 Users: %d\n", s.Users))
	sb.WriteString(fmt.Sprintf("⏳ Pending deposits: %d\n\n", s.PendingDeposits))
	sb.WriteString("🧾 Purchases:\n")
	sb.WriteString(fmt.Sprintf("  - pending: %d\n", s.PurchasesByStat[model.PurchaseStatusPending]))
	sb.WriteString(fmt.Sprintf("  - otp received: %d\n", s.PurchasesByStat[model.PurchaseStatusOTPReceived]))
	sb.WriteString(fmt.Sprintf("  - cancelled: %d\n", s.PurchasesByStat[model.PurchaseStatusCancelled]))
	if s.Stock != nil {
		sb.WriteString("\n📦 Stock:\n")
		sb.WriteString(fmt.Sprintf("  - in stock: %d\n", s.Stock.InStock))
		sb.WriteString(fmt.Sprintf("  - assigned: %d\n", s.Stock.Assigned))
		sb.WriteString(fmt.Sprintf("  - logged out: %d\n", s.Stock.LoggedOut))
		sb.WriteString(fmt.Sprintf("  - live listeners: %d\n", s.Stock.Listeners))
	}
	return sb.String(), nil
}

// HandleBroadcast queues text for every user except the sender.
func (b *BotFacade) HandleBroadcast(ctx context.Context, from int64, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, domain.ErrInvalidArgument
	}
	return b.Broadcast.BroadcastMessage(ctx, text, from)
}
