package adapter

import "context"

// SessionConn is a live secondary-account connection for one phone number.
type SessionConn interface {
	Phone() string
	IsAuthorized(ctx context.Context) (bool, error)
	// Messages yields inbound message texts in arrival order. It is closed
	// when the connection ends.
	Messages() <-chan string
	// Done is closed when the connection ends; Err then reports why.
	Done() <-chan struct{}
	Err() error
	// LogOut terminates the remote authorization for this session.
	LogOut(ctx context.Context) error
	// Disconnect closes the connection. It is safe to call more than once.
	Disconnect() error
}

// CodeRequest is the login challenge returned by SendCode.
type CodeRequest struct {
	// AlreadyAuthorized is set when the stored session is already logged in
	// and no code was sent.
	AlreadyAuthorized bool
	CodeHash          string
}

// SessionStore owns the on-disk session for every phone number.
type SessionStore interface {
	Connect(ctx context.Context, phone string) (SessionConn, error)
	SendCode(ctx context.Context, phone string) (CodeRequest, error)
	SignIn(ctx context.Context, phone, code, codeHash string) error
	RemoveSession(phone string) error
	// StoredPhones lists phone numbers that have a session file.
	StoredPhones() ([]string, error)
}
