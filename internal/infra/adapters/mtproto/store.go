// Package mtproto keeps the on-disk sessions of the secondary Telegram
// accounts held in stock and opens user-client connections for them.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-otp-marketplace/internal/config"
	"telegram-otp-marketplace/internal/domain"
	"telegram-otp-marketplace/internal/domain/ports/adapter"
)

const sessionExt = ".session"

type Store struct {
	appID   int
	appHash string
	dir     string
	log     *zap.Logger
}

var _ adapter.SessionStore = (*Store)(nil)

func NewStore(cfg config.SessionConfig, log *zap.Logger) (*Store, error) {
	if cfg.AppID == 0 || cfg.AppHash == "" {
		return nil, errors.New("mtproto: app_id and app_hash are required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("mtproto: create session dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{appID: cfg.AppID, appHash: cfg.AppHash, dir: cfg.Dir, log: log}, nil
}

func (s *Store) path(phone string) string {
	return filepath.Join(s.dir, strings.TrimPrefix(phone, "+")+sessionExt)
}

func (s *Store) newClient(phone string, h telegram.UpdateHandler) *telegram.Client {
	return telegram.NewClient(s.appID, s.appHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: s.path(phone)},
		UpdateHandler:  h,
		Logger:         s.log.Named("mtproto").With(zap.String("phone", phone)),
	})
}

// Connect starts a client for phone and returns once it is connected.
func (s *Store) Connect(ctx context.Context, phone string) (adapter.SessionConn, error) {
	c := newConn(phone)
	d := tg.NewUpdateDispatcher()
	d.OnNewMessage(c.onNewMessage)
	c.client = s.newClient(phone, d)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			close(c.ready)
			<-ctx.Done()
			return nil
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		c.finish(err)
	}()

	select {
	case <-c.ready:
		return c, nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("mtproto: connection closed during start")
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}
}

// SendCode requests a login code for phone. The code hash is bound to the
// stored session, so SignIn must run against the same session file.
func (s *Store) SendCode(ctx context.Context, phone string) (adapter.CodeRequest, error) {
	var out adapter.CodeRequest
	client := s.newClient(phone, nil)
	err := client.Run(ctx, func(ctx context.Context) error {
		st, err := client.Auth().Status(ctx)
		if err != nil {
			return err
		}
		if st.Authorized {
			out.AlreadyAuthorized = true
			return nil
		}
		sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		switch v := sent.(type) {
		case *tg.AuthSentCode:
			out.CodeHash = v.PhoneCodeHash
		case *tg.AuthSentCodeSuccess:
			out.AlreadyAuthorized = true
		default:
			return fmt.Errorf("unexpected sent code type %T", sent)
		}
		return nil
	})
	if err != nil {
		return adapter.CodeRequest{}, fmt.Errorf("%w: %v", domain.ErrSessionConnect, err)
	}
	return out, nil
}

func (s *Store) SignIn(ctx context.Context, phone, code, codeHash string) error {
	client := s.newClient(phone, nil)
	err := client.Run(ctx, func(ctx context.Context) error {
		_, err := client.Auth().SignIn(ctx, phone, code, codeHash)
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return domain.ErrPasswordRequired
	default:
		return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}
}

func (s *Store) RemoveSession(phone string) error {
	if err := os.Remove(s.path(phone)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// StoredPhones lists phones with a session file, in "+<digits>" form.
func (s *Store) StoredPhones() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		out = append(out, "+"+strings.TrimSuffix(name, sessionExt))
	}
	sort.Strings(out)
	return out, nil
}
