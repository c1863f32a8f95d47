package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram-otp-marketplace/internal/domain"
)

type UTRStatus string

const (
	UTRStatusPending  UTRStatus = "pending"
	UTRStatusApproved UTRStatus = "approved"
	UTRStatusRejected UTRStatus = "rejected"
)

// MinUTRLength is the shortest reference accepted from a buyer.
const MinUTRLength = 8

// UTRRequest is a manual payment claim waiting for owner review.
type UTRRequest struct {
	ID          string
	UserID      int64
	UTR         string
	Amount      int64
	Status      UTRStatus
	RequestedAt time.Time
}

func NewUTRRequest(userID int64, utr string, amount int64) (*UTRRequest, error) {
	utr = strings.TrimSpace(utr)
	if userID <= 0 || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if len(utr) < MinUTRLength {
		return nil, domain.ErrInvalidUTR
	}
	return &UTRRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		UTR:         utr,
		Amount:      amount,
		Status:      UTRStatusPending,
		RequestedAt: time.Now().UTC(),
	}, nil
}
