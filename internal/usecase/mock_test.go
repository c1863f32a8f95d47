//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/model"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
	"telegram-otp-marketplace/internal/domain/ports/repository"
)

// =============================
// Repositories (in-memory)
// =============================

// ---- Users ----

type MockUserRepo struct {
	mu       sync.Mutex
	balances map[int64]int64

	AddBalanceFunc func(ctx context.Context, tx repository.Tx, userID, delta int64) (int64, error)
}

func NewMockUserRepo() *MockUserRepo { return &MockUserRepo{balances: map[int64]int64{}} }

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (m *MockUserRepo) seed(userID, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *MockUserRepo) balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *MockUserRepo) Ensure(ctx context.Context, tx repository.Tx, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; !ok {
		m.balances[userID] = 0
	}
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.User{ID: userID, Balance: b}, nil
}

func (m *MockUserRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, userID int64) (*model.User, error) {
	return m.FindByID(ctx, tx, userID)
}

func (m *MockUserRepo) AddBalance(ctx context.Context, tx repository.Tx, userID, delta int64) (int64, error) {
	if m.AddBalanceFunc != nil {
		return m.AddBalanceFunc(ctx, tx, userID, delta)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += delta
	return m.balances[userID], nil
}

func (m *MockUserRepo) DeductBalance(ctx context.Context, tx repository.Tx, userID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return 0, domain.ErrInsufficientBalance
	}
	m.balances[userID] -= amount
	return m.balances[userID], nil
}

func (m *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.balances), nil
}

func (m *MockUserRepo) ListIDs(ctx context.Context, tx repository.Tx, afterID int64, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.balances {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ---- Purchases ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	rows []*model.Purchase

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Purchase) error
}

func NewMockPurchaseRepo() *MockPurchaseRepo { return &MockPurchaseRepo{} }

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func clonePurchase(p *model.Purchase) *model.Purchase {
	cp := *p
	return &cp
}

func (m *MockPurchaseRepo) all() []*model.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Purchase, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, clonePurchase(p))
	}
	return out
}

func (m *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Status == model.PurchaseStatusPending && (r.UserID == p.UserID || r.Number == p.Number) && p.Status == model.PurchaseStatusPending {
			return domain.ErrPendingPurchaseExists
		}
	}
	m.rows = append(m.rows, clonePurchase(p))
	return nil
}

func (m *MockPurchaseRepo) find(match func(*model.Purchase) bool) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if match(m.rows[i]) {
			return clonePurchase(m.rows[i]), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPurchaseRepo) FindPendingByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Purchase, error) {
	return m.find(func(p *model.Purchase) bool { return p.UserID == userID && p.IsPending() })
}

func (m *MockPurchaseRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Purchase, error) {
	return m.find(func(p *model.Purchase) bool { return p.UserID == userID })
}

func (m *MockPurchaseRepo) FindPendingByNumber(ctx context.Context, tx repository.Tx, number string) (*model.Purchase, error) {
	return m.find(func(p *model.Purchase) bool { return p.Number == number && p.IsPending() })
}

func (m *MockPurchaseRepo) SetOTP(ctx context.Context, tx repository.Tx, number, code string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		p := m.rows[i]
		if p.Number == number && p.IsPending() {
			c := code
			p.OTP = &c
			p.Status = model.PurchaseStatusOTPReceived
			return clonePurchase(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPurchaseRepo) Cancel(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ID == id {
			if !p.IsPending() {
				return domain.ErrPurchaseNotPending
			}
			p.Status = model.PurchaseStatusCancelled
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockPurchaseRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.PurchaseStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.rows {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

// ---- Stock ----

type MockStockRepo struct {
	mu   sync.Mutex
	rows map[string]*model.PhoneAccount
	seq  time.Time
}

func NewMockStockRepo(phones ...string) *MockStockRepo {
	m := &MockStockRepo{rows: map[string]*model.PhoneAccount{}, seq: time.Unix(1_700_000_000, 0)}
	for _, p := range phones {
		_ = m.Add(context.Background(), nil, p)
	}
	return m
}

var _ repository.StockRepository = (*MockStockRepo)(nil)

func (m *MockStockRepo) status(phone string) model.StockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[phone]; ok {
		return a.Status
	}
	return ""
}

func (m *MockStockRepo) Add(ctx context.Context, tx repository.Tx, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = m.seq.Add(time.Second)
	m.rows[phone] = &model.PhoneAccount{Phone: phone, Status: model.StockStatusInStock, AddedAt: m.seq}
	return nil
}

func (m *MockStockRepo) Dispense(ctx context.Context, tx repository.Tx) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.PhoneAccount
	for _, a := range m.rows {
		if a.Status == model.StockStatusInStock && (oldest == nil || a.AddedAt.Before(oldest.AddedAt)) {
			oldest = a
		}
	}
	if oldest == nil {
		return "", domain.ErrOutOfStock
	}
	oldest.Status = model.StockStatusAssigned
	return oldest.Phone, nil
}

func (m *MockStockRepo) SetStatus(ctx context.Context, tx repository.Tx, phone string, status model.StockStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[phone]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *MockStockRepo) Find(ctx context.Context, tx repository.Tx, phone string) (*model.PhoneAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[phone]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockStockRepo) Count(ctx context.Context, tx repository.Tx) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *MockStockRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.StockStatus) (int, error) {
	list, _ := m.ListByStatus(ctx, tx, status)
	return len(list), nil
}

func (m *MockStockRepo) ListByStatus(ctx context.Context, tx repository.Tx, statuses ...model.StockStatus) ([]*model.PhoneAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PhoneAccount
	for _, a := range m.rows {
		keep := len(statuses) == 0
		for _, s := range statuses {
			if a.Status == s {
				keep = true
			}
		}
		if keep {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

// ---- UTR requests ----

type MockUTRRepo struct {
	mu   sync.Mutex
	rows []*model.UTRRequest
}

func NewMockUTRRepo() *MockUTRRepo { return &MockUTRRepo{} }

var _ repository.UTRRepository = (*MockUTRRepo)(nil)

func (m *MockUTRRepo) Save(ctx context.Context, tx repository.Tx, r *model.UTRRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockUTRRepo) Resolve(ctx context.Context, tx repository.Tx, userID int64, status model.UTRStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.UserID == userID && r.Status == model.UTRStatusPending {
			r.Status = status
			n++
		}
	}
	return n, nil
}

func (m *MockUTRRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.UTRRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UTRRequest
	for _, r := range m.rows {
		if r.Status == model.UTRStatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Gateway payments ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	seen map[string]*repository.GatewayPayment
}

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{seen: map[string]*repository.GatewayPayment{}}
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (m *MockPaymentRepo) Record(ctx context.Context, tx repository.Tx, p *repository.GatewayPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[p.ID]; ok {
		return domain.ErrDuplicatePayment
	}
	cp := *p
	m.seen[p.ID] = &cp
	return nil
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID int64, limit int) ([]*repository.GatewayPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.GatewayPayment
	for _, p := range m.seen {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---- Dialogue state ----

type MockStateRepo struct {
	mu     sync.Mutex
	states map[int64]*model.Dialogue
}

func NewMockStateRepo() *MockStateRepo { return &MockStateRepo{states: map[int64]*model.Dialogue{}} }

var _ repository.StateRepository = (*MockStateRepo)(nil)

func (m *MockStateRepo) SetState(ctx context.Context, tgID int64, d *model.Dialogue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[tgID] = d
	return nil
}

func (m *MockStateRepo) GetState(ctx context.Context, tgID int64) (*model.Dialogue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[tgID], nil
}

func (m *MockStateRepo) ClearState(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tgID)
	return nil
}

// =============================
// Adapters
// =============================

// ---- Listener manager ----

type stopCall struct {
	Phone  string
	Logout bool
	Reason string
}

type MockListeners struct {
	mu       sync.Mutex
	active   map[string]bool
	Starts   []string
	Stops    []stopCall
	Logouts  []string
	Expiring []string

	StartFunc func(ctx context.Context, phone string) (bool, error)
}

func NewMockListeners() *MockListeners { return &MockListeners{active: map[string]bool{}} }

func (m *MockListeners) Start(ctx context.Context, phone string) (bool, error) {
	m.mu.Lock()
	m.Starts = append(m.Starts, phone)
	fn := m.StartFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, phone)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[phone] {
		return false, nil
	}
	m.active[phone] = true
	return true, nil
}

func (m *MockListeners) Stop(phone string, logout bool, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stops = append(m.Stops, stopCall{phone, logout, reason})
	was := m.active[phone]
	delete(m.active, phone)
	return was
}

func (m *MockListeners) ForceLogout(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logouts = append(m.Logouts, phone)
	delete(m.active, phone)
	return nil
}

func (m *MockListeners) ScheduleTeardown(phone string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Expiring = append(m.Expiring, phone)
	return m.active[phone]
}

func (m *MockListeners) IsActive(phone string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[phone]
}

func (m *MockListeners) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for p := range m.active {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ---- Session store ----

type MockSessionStore struct {
	mu      sync.Mutex
	stored  []string
	Removed []string

	SendCodeFunc func(ctx context.Context, phone string) (adapter.CodeRequest, error)
	SignInFunc   func(ctx context.Context, phone, code, hash string) error
}

func NewMockSessionStore(stored ...string) *MockSessionStore {
	return &MockSessionStore{stored: stored}
}

var _ adapter.SessionStore = (*MockSessionStore)(nil)

func (m *MockSessionStore) Connect(ctx context.Context, phone string) (adapter.SessionConn, error) {
	return nil, errors.New("not used")
}

func (m *MockSessionStore) SendCode(ctx context.Context, phone string) (adapter.CodeRequest, error) {
	if m.SendCodeFunc != nil {
		return m.SendCodeFunc(ctx, phone)
	}
	return adapter.CodeRequest{CodeHash: "hash-" + phone}, nil
}

func (m *MockSessionStore) SignIn(ctx context.Context, phone, code, hash string) error {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, phone, code, hash)
	}
	return nil
}

func (m *MockSessionStore) RemoveSession(phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, phone)
	return nil
}

func (m *MockSessionStore) StoredPhones() ([]string, error) {
	return append([]string(nil), m.stored...), nil
}

func (m *MockSessionStore) removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.Removed...)
	sort.Strings(out)
	return out
}

// ---- Bot ----

type MockBot struct {
	mu   sync.Mutex
	Sent []adapter.SendMessageParams
	Err  error
}

var _ adapter.TelegramBotAdapter = (*MockBot)(nil)

func (b *MockBot) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Sent = append(b.Sent, params)
	return nil
}

func (b *MockBot) sent() []adapter.SendMessageParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]adapter.SendMessageParams(nil), b.Sent...)
}

// =============================
// Infra helpers for tests
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrBusy
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
