package domain

import "errors"

// Error kinds surfaced by the core. The API layer translates these to HTTP
// status codes in internal/api/errors.go; scheduler tasks log and swallow
// them.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorised        = errors.New("unauthorised")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLTVExceeded         = errors.New("ltv exceeded")
	ErrTerminalLoan        = errors.New("loan already closed")
	ErrLedgerConflict      = errors.New("ledger transaction conflict")
)
