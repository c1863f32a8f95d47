package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-otp-marketplace/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending     PurchaseStatus = "pending"      // number dispensed, waiting for a code
	PurchaseStatusOTPReceived PurchaseStatus = "otp_received" // code delivered, terminal
	PurchaseStatusCancelled   PurchaseStatus = "cancelled"    // refunded, terminal
)

// Purchase binds a buyer to a dispensed phone number.
// IDs are ULIDs so lexical order equals creation order.
type Purchase struct {
	ID        string
	UserID    int64
	Number    string
	Status    PurchaseStatus
	Price     int64 // amount charged, refunded on cancel
	OTP       *string
	CreatedAt time.Time
}

func NewPurchase(userID int64, number string, price int64) (*Purchase, error) {
	number = strings.TrimSpace(number)
	if userID <= 0 || number == "" || price < 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Purchase{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Number:    number,
		Status:    PurchaseStatusPending,
		Price:     price,
		CreatedAt: now,
	}, nil
}

func (p *Purchase) IsPending() bool { return p != nil && p.Status == PurchaseStatusPending }

// Code returns the received OTP or "" when none arrived yet.
func (p *Purchase) Code() string {
	if p == nil || p.OTP == nil {
		return ""
	}
	return strings.TrimSpace(*p.OTP)
}

func (p *Purchase) HasCode() bool { return p.Code() != "" }
