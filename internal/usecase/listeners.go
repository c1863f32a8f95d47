package usecase

import (
	"context"
	"time"
)

// ListenerController is the part of the OTP listener manager the use cases drive.
type ListenerController interface {
	Start(ctx context.Context, phone string) (bool, error)
	Stop(phone string, logout bool, reason string) bool
	ForceLogout(ctx context.Context, phone string) error
	// ScheduleTeardown arms the grace-period logout for a running listener.
	ScheduleTeardown(phone string) bool
	IsActive(phone string) bool
	Active() []string
}

// Locker serializes work on a shared key across bot workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
