package mtproto

import (
	"context"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

const messageBuffer = 32

// conn is a running gotd client for one phone. The client lives in its own
// goroutine until Disconnect or a transport failure.
type conn struct {
	phone  string
	client *telegram.Client

	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	msgs   chan string
	err    error
}

var _ adapter.SessionConn = (*conn)(nil)

func newConn(phone string) *conn {
	return &conn{
		phone: phone,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
		msgs:  make(chan string, messageBuffer),
	}
}

func (c *conn) Phone() string { return c.phone }

func (c *conn) Messages() <-chan string { return c.msgs }

func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *conn) IsAuthorized(ctx context.Context) (bool, error) {
	st, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	return st.Authorized, nil
}

func (c *conn) LogOut(ctx context.Context) error {
	_, err := c.client.API().AuthLogOut(ctx)
	return err
}

func (c *conn) Disconnect() error {
	c.cancel()
	<-c.done
	return nil
}

// onNewMessage forwards incoming message texts in arrival order.
func (c *conn) onNewMessage(ctx context.Context, _ tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out || msg.Message == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.msgs <- msg.Message:
	case <-ctx.Done():
	}
	return nil
}

func (c *conn) finish(err error) {
	c.cancel()
	c.mu.Lock()
	c.closed = true
	if err != nil && c.err == nil {
		c.err = err
	}
	close(c.msgs)
	c.mu.Unlock()
	close(c.done)
}
