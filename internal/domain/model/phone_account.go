package model

import (
	"strings"
	"time"

	"telegram-otp-marketplace/internal/domain"
)

type StockStatus string

const (
	StockStatusInStock   StockStatus = "in_stock"
	StockStatusAssigned  StockStatus = "assigned"
	StockStatusLoggedOut StockStatus = "logged_out"
)

// PhoneAccount is an inventory entry backed by a secondary-account session.
type PhoneAccount struct {
	Phone   string
	Status  StockStatus
	AddedAt time.Time
}

func NewPhoneAccount(phone string) (*PhoneAccount, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &PhoneAccount{Phone: phone, Status: StockStatusInStock, AddedAt: time.Now().UTC()}, nil
}

// NormalizePhone strips whitespace and separators, keeping a leading '+'.
// It returns "" when the input is not a plausible phone number.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	out := b.String()
	digits := strings.TrimPrefix(out, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return out
}
