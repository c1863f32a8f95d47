package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Infrastructure
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Purchases and wallet
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrOutOfStock            = errors.New("no account stock available")
	ErrPendingPurchaseExists = errors.New("user already has a pending purchase")
	ErrNoPendingPurchase     = errors.New("no pending purchase found")
	ErrPurchaseNotPending    = errors.New("purchase is no longer pending")
	ErrInvalidUTR            = errors.New("invalid UTR")
	ErrNoPendingDeposit      = errors.New("no pending deposit request")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrDuplicatePayment      = errors.New("payment already credited")

	// Secondary sessions
	ErrSessionConnect      = errors.New("secondary session connect failed")
	ErrConnectTimeout      = errors.New("secondary session connect timed out")
	ErrSessionUnauthorized = errors.New("secondary session is not authorized")
	ErrAuthFailed          = errors.New("secondary session authentication failed")
	ErrPasswordRequired    = errors.New("account has two-step verification enabled")

	// Dialogue
	ErrNoDialogue = errors.New("no dialogue in progress")
	ErrBusy       = errors.New("another operation holds this resource")
)
