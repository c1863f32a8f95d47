//go:build !integration

package otp_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
	"telegram-otp-marketplace/internal/otp"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeConn struct {
	phone      string
	authorized bool
	msgs       chan string
	done       chan struct{}
	closeOnce  sync.Once
	logouts    atomic.Int32
	disconnect atomic.Int32
}

func newFakeConn(phone string) *fakeConn {
	return &fakeConn{phone: phone, authorized: true, msgs: make(chan string, 16), done: make(chan struct{})}
}

func (c *fakeConn) Phone() string                                  { return c.phone }
func (c *fakeConn) IsAuthorized(ctx context.Context) (bool, error) { return c.authorized, nil }
func (c *fakeConn) Messages() <-chan string                        { return c.msgs }
func (c *fakeConn) Done() <-chan struct{}                          { return c.done }
func (c *fakeConn) Err() error                                     { return nil }
func (c *fakeConn) LogOut(ctx context.Context) error {
	c.logouts.Add(1)
	return nil
}
func (c *fakeConn) Disconnect() error {
	c.disconnect.Add(1)
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// drop simulates the remote end closing the connection.
func (c *fakeConn) drop() {
	c.closeOnce.Do(func() { close(c.done) })
	close(c.msgs)
}

type fakeStore struct {
	mu       sync.Mutex
	conns    map[string]*fakeConn
	connects atomic.Int32
	removed  []string
	delay    time.Duration
	err      error
}

func newFakeStore() *fakeStore { return &fakeStore{conns: map[string]*fakeConn{}} }

func (s *fakeStore) conn(phone string) *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[phone]
	if !ok {
		c = newFakeConn(phone)
		s.conns[phone] = c
	}
	return c
}

func (s *fakeStore) Connect(ctx context.Context, phone string) (adapter.SessionConn, error) {
	s.connects.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.conn(phone), nil
}

func (s *fakeStore) SendCode(ctx context.Context, phone string) (adapter.CodeRequest, error) {
	return adapter.CodeRequest{CodeHash: "hash"}, nil
}

func (s *fakeStore) SignIn(ctx context.Context, phone, code, codeHash string) error { return nil }

func (s *fakeStore) RemoveSession(phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, phone)
	return nil
}

func (s *fakeStore) StoredPhones() ([]string, error) { return nil, nil }

func (s *fakeStore) removedPhones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// fakeRecorder keeps one pending purchase per phone.
type fakeRecorder struct {
	mu      sync.Mutex
	pending map[string]*model.Purchase
	calls   atomic.Int32
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{pending: map[string]*model.Purchase{}} }

func (r *fakeRecorder) add(userID int64, phone string) *model.Purchase {
	p, _ := model.NewPurchase(userID, phone, 45)
	r.mu.Lock()
	r.pending[phone] = p
	r.mu.Unlock()
	return p
}

func (r *fakeRecorder) SetOTP(ctx context.Context, tx repository.Tx, number, code string) (*model.Purchase, error) {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[number]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.pending, number)
	c := code
	p.OTP = &c
	p.Status = model.PurchaseStatusOTPReceived
	return p, nil
}

type fakeStock struct {
	mu     sync.Mutex
	status map[string]model.StockStatus
}

func newFakeStock() *fakeStock { return &fakeStock{status: map[string]model.StockStatus{}} }

func (s *fakeStock) SetStatus(ctx context.Context, tx repository.Tx, phone string, st model.StockStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[phone] = st
	return nil
}

func (s *fakeStock) get(phone string) model.StockStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[phone]
}

type notification struct {
	buyer int64
	phone string
	code  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	fail bool
}

func (n *fakeNotifier) NotifyOTP(ctx context.Context, buyerID int64, phone, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{buyerID, phone, code})
	if n.fail {
		return errors.New("bot blocked by user")
	}
	return nil
}

func (n *fakeNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type harness struct {
	store    *fakeStore
	recorder *fakeRecorder
	stock    *fakeStock
	notifier *fakeNotifier
	mgr      *otp.Manager
}

func newHarness(grace time.Duration) *harness {
	h := &harness{
		store:    newFakeStore(),
		recorder: newFakeRecorder(),
		stock:    newFakeStock(),
		notifier: &fakeNotifier{},
	}
	h.mgr = otp.NewManager(
		otp.Config{GracePeriod: grace, ConnectTimeout: 200 * time.Millisecond, CallTimeout: time.Second, Dev: true},
		h.store, h.recorder, h.stock, h.notifier, newTestLogger(),
	)
	return h
}
