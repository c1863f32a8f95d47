package model

// Dialogue is the persisted form of a multi-step conversation.
type Dialogue struct {
	Flow string            `json:"flow"` // "onboarding" | "deposit"
	Step string            `json:"step"`
	Data map[string]string `json:"data,omitempty"`
}

const (
	FlowOnboarding = "onboarding"
	FlowDeposit    = "deposit"
)

// ---- Owner onboarding ----

// OnboardingState is one of OnboardingIdle, OnboardingAwaitingPhone or OnboardingAwaitingCode.
type OnboardingState interface{ onboardingState() }

type OnboardingIdle struct{}

type OnboardingAwaitingPhone struct{}

// OnboardingAwaitingCode holds the login challenge issued for Phone.
type OnboardingAwaitingCode struct {
	Phone    string
	CodeHash string
}

func (OnboardingIdle) onboardingState()          {}
func (OnboardingAwaitingPhone) onboardingState() {}
func (OnboardingAwaitingCode) onboardingState()  {}

func OnboardingToDialogue(s OnboardingState) *Dialogue {
	switch v := s.(type) {
	case OnboardingAwaitingPhone:
		return &Dialogue{Flow: FlowOnboarding, Step: "awaiting_phone"}
	case OnboardingAwaitingCode:
		return &Dialogue{Flow: FlowOnboarding, Step: "awaiting_code", Data: map[string]string{
			"phone":     v.Phone,
			"code_hash": v.CodeHash,
		}}
	default:
		return nil
	}
}

// OnboardingFromDialogue decodes d; anything unrecognised is OnboardingIdle.
func OnboardingFromDialogue(d *Dialogue) OnboardingState {
	if d == nil || d.Flow != FlowOnboarding {
		return OnboardingIdle{}
	}
	switch d.Step {
	case "awaiting_phone":
		return OnboardingAwaitingPhone{}
	case "awaiting_code":
		phone, hash := d.Data["phone"], d.Data["code_hash"]
		if phone == "" || hash == "" {
			return OnboardingIdle{}
		}
		return OnboardingAwaitingCode{Phone: phone, CodeHash: hash}
	}
	return OnboardingIdle{}
}

// ---- Manual deposit (UTR) ----

// DepositState is one of DepositIdle, DepositAwaitingUTR or DepositAwaitingAmount.
type DepositState interface{ depositState() }

type DepositIdle struct{}

type DepositAwaitingUTR struct{}

type DepositAwaitingAmount struct {
	UTR string
}

func (DepositIdle) depositState()           {}
func (DepositAwaitingUTR) depositState()    {}
func (DepositAwaitingAmount) depositState() {}

func DepositToDialogue(s DepositState) *Dialogue {
	switch v := s.(type) {
	case DepositAwaitingUTR:
		return &Dialogue{Flow: FlowDeposit, Step: "awaiting_utr"}
	case DepositAwaitingAmount:
		return &Dialogue{Flow: FlowDeposit, Step: "awaiting_amount", Data: map[string]string{"utr": v.UTR}}
	default:
		return nil
	}
}

func DepositFromDialogue(d *Dialogue) DepositState {
	if d == nil || d.Flow != FlowDeposit {
		return DepositIdle{}
	}
	switch d.Step {
	case "awaiting_utr":
		return DepositAwaitingUTR{}
	case "awaiting_amount":
		if utr := d.Data["utr"]; utr != "" {
			return DepositAwaitingAmount{UTR: utr}
		}
	}
	return DepositIdle{}
}
