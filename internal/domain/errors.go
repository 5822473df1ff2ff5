package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrShuttingDown  = errors.New("shutting down")

	// Trading errors surfaced to callers of open/close.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownUser         = errors.New("unknown user")
	ErrPositionNotFound    = errors.New("position not found")
	ErrNotOwner            = errors.New("position belongs to another user")
	ErrAlreadyClosed       = errors.New("position already closed")
	ErrOracleUnavailable   = errors.New("price oracle unavailable")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPosition     = errors.New("invalid position parameters")

	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrPaymentResolved = errors.New("payment already resolved")
)
