package otp

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Handle is the registry entry for one phone's listener. It owns the live
// connection, the run-loop cancel func and the pending teardown timer.
type Handle struct {
	Phone string

	gen   uint64
	state atomic.Int32

	mu        sync.Mutex
	conn      adapter.SessionConn
	cancel    context.CancelFunc
	teardown  *time.Timer
	startedAt time.Time

	stopOnce sync.Once
	done     chan struct{}
}

func newHandle(phone string, gen uint64) *Handle {
	return &Handle{Phone: phone, gen: gen, done: make(chan struct{})}
}

func (h *Handle) State() State { return State(h.state.Load()) }

// Generation distinguishes successive handles for the same phone.
func (h *Handle) Generation() uint64 { return h.gen }

// Done is closed once the handle is stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// TeardownScheduled reports whether an automatic teardown is pending.
func (h *Handle) TeardownScheduled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.teardown != nil && h.State() != StateStopped
}

// attach moves a starting handle to running. It fails if the handle was
// stopped while the connection was being established.
func (h *Handle) attach(conn adapter.SessionConn, cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		return false
	}
	h.conn = conn
	h.cancel = cancel
	h.startedAt = time.Now()
	return true
}

// Registry maps phone numbers to listener handles, at most one per phone.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
	gen     uint64
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Acquire returns the registered handle for phone, or registers a new one in
// the starting state. created reports which of the two happened.
func (r *Registry) Acquire(phone string) (h *Handle, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[phone]; ok {
		return h, false
	}
	r.gen++
	h = newHandle(phone, r.gen)
	r.handles[phone] = h
	return h, true
}

// Release unregisters h. A handle that has already been replaced is left alone.
func (r *Registry) Release(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.handles[h.Phone]; ok && cur == h {
		delete(r.handles, h.Phone)
		return true
	}
	return false
}

// ReleasePhone unregisters whatever handle phone has. It is a no-op when
// nothing is registered. The handle itself is not stopped.
func (r *Registry) ReleasePhone(phone string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[phone]; !ok {
		return false
	}
	delete(r.handles, phone)
	return true
}

func (r *Registry) Get(phone string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[phone]
	return h, ok
}

func (r *Registry) IsActive(phone string) bool {
	_, ok := r.Get(phone)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Phones returns the registered phone numbers in sorted order.
func (r *Registry) Phones() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.handles))
	for p := range r.handles {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}
