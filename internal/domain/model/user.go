package model

import (
	"time"

	"telegram-otp-marketplace/internal/domain"
)

// User is a buyer wallet keyed by Telegram user ID.
// Balance is kept in whole rupees.
type User struct {
	ID        int64
	Balance   int64
	CreatedAt time.Time
}

func NewUser(tgID int64) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{ID: tgID, CreatedAt: time.Now()}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }

// CanAfford reports whether the wallet covers price.
func (u *User) CanAfford(price int64) bool { return u != nil && u.Balance >= price }

// Shortfall is the amount still missing to cover price.
func (u *User) Shortfall(price int64) int64 {
	if u == nil {
		return price
	}
	if d := price - u.Balance; d > 0 {
		return d
	}
	return 0
}
