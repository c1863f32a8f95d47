package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/infra/logging"
	"telegram-otp-marketplace/internal/infra/metrics"
)

const (
	DefaultGracePeriod    = 300 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultCallTimeout    = 15 * time.Second
)

// Stop reasons, also used as metric labels.
const (
	ReasonGracePeriod  = "grace_period"
	ReasonCancelled    = "cancelled"
	ReasonForceLogout  = "force_logout"
	ReasonDisconnected = "disconnected"
	ReasonShutdown     = "shutdown"
)

// CodeRecorder persists an extracted code against the pending purchase for a
// phone and returns that purchase.
type CodeRecorder interface {
	SetOTP(ctx context.Context, tx repository.Tx, number, code string) (*model.Purchase, error)
}

// StockMarker updates a phone's inventory status.
type StockMarker interface {
	SetStatus(ctx context.Context, tx repository.Tx, phone string, status model.StockStatus) error
}

type Config struct {
	GracePeriod    time.Duration
	ConnectTimeout time.Duration
	// CallTimeout bounds persistence, notification and logout calls.
	CallTimeout time.Duration
	Dev         bool
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Manager runs one listener per phone number. A listener extracts codes from
// inbound messages, records them, notifies the buyer and schedules its own
// teardown once the grace period has passed.
type Manager struct {
	cfg       Config
	sessions  adapter.SessionStore
	purchases CodeRecorder
	stock     StockMarker
	notifier  adapter.Notifier
	registry  *Registry
	log       *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(
	cfg Config,
	sessions adapter.SessionStore,
	purchases CodeRecorder,
	stock StockMarker,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "otp_manager").Logger()
	return &Manager{
		cfg:       cfg.withDefaults(),
		sessions:  sessions,
		purchases: purchases,
		stock:     stock,
		notifier:  notifier,
		registry:  NewRegistry(),
		log:       &l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) IsActive(phone string) bool { return m.registry.IsActive(phone) }

// Active lists phones with a registered listener.
func (m *Manager) Active() []string { return m.registry.Phones() }

// Start registers and connects a listener for phone. It returns false with a
// nil error when a listener is already registered. On failure the slot is
// released so the caller can retry.
func (m *Manager) Start(ctx context.Context, phone string) (bool, error) {
	defer logging.TraceDuration(m.log, "Manager.Start")()

	if m.ctx.Err() != nil {
		return false, fmt.Errorf("otp manager: %w", context.Canceled)
	}

	h, created := m.registry.Acquire(phone)
	if !created {
		metrics.IncListenerStart("already_active")
		return false, nil
	}
	metrics.ListenerUp()

	log := m.log.With().Str("phone", logging.Redact(phone, m.cfg.Dev)).Uint64("gen", h.gen).Logger()

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.sessions.Connect(cctx, phone)
	if err != nil {
		m.abandon(h)
		metrics.IncListenerStart("connect_error")
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			log.Warn().Err(err).Dur("timeout", m.cfg.ConnectTimeout).Msg("listener connect timed out")
			return false, fmt.Errorf("%w: %v", domain.ErrConnectTimeout, err)
		}
		log.Error().Err(err).Msg("listener connect failed")
		return false, fmt.Errorf("%w: %v", domain.ErrSessionConnect, err)
	}

	authorized, err := conn.IsAuthorized(cctx)
	if err != nil || !authorized {
		_ = conn.Disconnect()
		m.abandon(h)
		metrics.IncListenerStart("unauthorized")
		log.Warn().Err(err).Msg("session is not authorized")
		if err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrSessionUnauthorized, err)
		}
		return false, domain.ErrSessionUnauthorized
	}

	runCtx, runCancel := context.WithCancel(m.ctx)
	if !h.attach(conn, runCancel) {
		// Stopped while connecting.
		runCancel()
		_ = conn.Disconnect()
		log.Debug().Msg("listener stopped before it was running")
		return false, nil
	}

	m.wg.Add(1)
	go m.run(runCtx, h, &log)

	metrics.IncListenerStart("started")
	log.Info().Msg("listener started")
	return true, nil
}

// abandon releases a handle that never reached the running state.
func (m *Manager) abandon(h *Handle) {
	h.stopOnce.Do(func() {
		h.state.Store(int32(StateStopped))
		m.registry.Release(h)
		close(h.done)
		metrics.ListenerDown()
	})
}

func (m *Manager) run(ctx context.Context, h *Handle, log *zerolog.Logger) {
	defer m.wg.Done()

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	reason := ReasonDisconnected
	defer func() {
		if m.stop(h, false, reason) && reason == ReasonDisconnected {
			log.Warn().Err(conn.Err()).Msg("listener connection ended")
		}
	}()

	msgs := conn.Messages()
	for {
		select {
		case <-ctx.Done():
			if m.ctx.Err() != nil {
				reason = ReasonShutdown
			}
			return
		case text, ok := <-msgs:
			if !ok {
				return
			}
			m.handleMessage(ctx, h, text, log)
		}
	}
}

// handleMessage processes one inbound message. A panic here is logged and
// does not end the listener.
func (m *Manager) handleMessage(ctx context.Context, h *Handle, text string, log *zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered while handling message")
		}
	}()

	code, ok := Match(text)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	p, err := m.purchases.SetOTP(cctx, repository.NoTX, h.Phone, code)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug().Msg("code received with no pending purchase")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to record code")
		return
	}
	metrics.IncCodeReceived()
	metrics.IncPurchase(string(model.PurchaseStatusOTPReceived))

	m.scheduleTeardown(h)

	if err := m.notifier.NotifyOTP(cctx, p.UserID, h.Phone, code); err != nil {
		metrics.IncNotifyFailure()
		log.Error().Err(err).Int64("buyer", p.UserID).Msg("failed to notify buyer")
		return
	}
	log.Info().Int64("buyer", p.UserID).Str("purchase_id", p.ID).Msg("code delivered")
}

func (m *Manager) scheduleTeardown(h *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.teardown != nil || h.State() == StateStopped {
		return
	}
	h.teardown = time.AfterFunc(m.cfg.GracePeriod, func() { m.teardown(h) })
}

// ScheduleTeardown arms the grace-period teardown for the running listener
// on phone. It reports whether a teardown is pending afterwards.
func (m *Manager) ScheduleTeardown(phone string) bool {
	h, ok := m.registry.Get(phone)
	if !ok {
		return false
	}
	m.scheduleTeardown(h)
	return h.TeardownScheduled()
}

func (m *Manager) teardown(h *Handle) {
	if m.stop(h, true, ReasonGracePeriod) {
		m.forget(h.Phone)
		return
	}
	// The listener was already stopped. A dropped connection leaves the timer
	// armed, so the stored session still has to be logged out.
	h.mu.Lock()
	pending := h.teardown != nil
	h.mu.Unlock()
	if !pending || m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout+m.cfg.CallTimeout)
	defer cancel()
	m.logout(ctx, h.Phone, ReasonGracePeriod)
}

// cancelsTeardown reports whether a stop for reason disarms the grace-period
// teardown. A dropped connection does not.
func cancelsTeardown(reason string) bool {
	switch reason {
	case ReasonCancelled, ReasonForceLogout, ReasonShutdown:
		return true
	}
	return false
}

// forget removes the stored session and marks the phone logged out.
func (m *Manager) forget(phone string) {
	log := m.log.With().Str("phone", logging.Redact(phone, m.cfg.Dev)).Logger()
	if err := m.sessions.RemoveSession(phone); err != nil {
		log.Warn().Err(err).Msg("failed to remove session")
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
	defer cancel()
	if err := m.stock.SetStatus(ctx, repository.NoTX, phone, model.StockStatusLoggedOut); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("failed to mark phone logged out")
	}
}

// stop tears h down once. It reports whether this call did the work.
func (m *Manager) stop(h *Handle, logout bool, reason string) bool {
	did := false
	h.stopOnce.Do(func() {
		did = true
		m.registry.Release(h)

		h.mu.Lock()
		h.state.Store(int32(StateStopped))
		if h.teardown != nil && cancelsTeardown(reason) {
			h.teardown.Stop()
			h.teardown = nil
		}
		cancel, conn := h.cancel, h.conn
		h.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		log := m.log.With().Str("phone", logging.Redact(h.Phone, m.cfg.Dev)).Str("reason", reason).Logger()
		if conn != nil {
			if logout {
				ctx, c := context.WithTimeout(context.Background(), m.cfg.CallTimeout)
				if err := conn.LogOut(ctx); err != nil {
					log.Warn().Err(err).Msg("logout failed")
				}
				c()
			}
			if err := conn.Disconnect(); err != nil {
				log.Debug().Err(err).Msg("disconnect")
			}
		}
		close(h.done)
		metrics.ListenerDown()
		metrics.IncTeardown(reason)
		log.Info().Bool("logout", logout).Msg("listener stopped")
	})
	return did
}

// Stop stops the listener for phone, if any. It is idempotent. Cancel, force
// logout and shutdown also disarm a pending automatic teardown.
func (m *Manager) Stop(phone string, logout bool, reason string) bool {
	h, ok := m.registry.Get(phone)
	if !ok {
		return false
	}
	return m.stop(h, logout, reason)
}

// ForceLogout ends the remote session for phone whether or not a listener is
// running, removes the stored session and marks the phone logged out.
func (m *Manager) ForceLogout(ctx context.Context, phone string) error {
	defer logging.TraceDuration(m.log, "Manager.ForceLogout")()
	m.logout(ctx, phone, ReasonForceLogout)
	return nil
}

func (m *Manager) logout(ctx context.Context, phone, reason string) {
	if h, ok := m.registry.Get(phone); ok {
		m.stop(h, true, reason)
	} else {
		cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
		conn, err := m.sessions.Connect(cctx, phone)
		if err != nil {
			m.log.Warn().Err(err).Str("phone", logging.Redact(phone, m.cfg.Dev)).Msg("connect for logout failed")
		} else {
			if ok, _ := conn.IsAuthorized(cctx); ok {
				if err := conn.LogOut(cctx); err != nil {
					m.log.Warn().Err(err).Msg("logout failed")
				}
			}
			_ = conn.Disconnect()
		}
		metrics.IncTeardown(reason)
	}
	m.forget(phone)
}

// Shutdown stops every listener without logging sessions out and waits for
// the run loops to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	for _, p := range m.registry.Phones() {
		m.Stop(p, false, ReasonShutdown)
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
