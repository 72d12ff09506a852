package protocol

import "errors"

// Operation error kinds. Every failure leaves the state bit-for-bit
// unchanged, and callers can tell the kinds apart with errors.Is — an
// InsufficientLiquidity rejection is retried later, an overflow is not.
var (
	// ErrInvalidAmount is returned for a zero amount, or an amount too
	// small to have any effect (e.g. mints zero shares).
	ErrInvalidAmount = errors.New("protocol: invalid amount")

	// ErrInsufficientBalance is returned when the caller lacks the
	// declared asset balance.
	ErrInsufficientBalance = errors.New("protocol: insufficient balance")

	// ErrInsufficientShares is returned when the caller holds fewer
	// pool shares than a removal requests.
	ErrInsufficientShares = errors.New("protocol: insufficient shares")

	// ErrUnauthorized is returned when the signer check fails.
	ErrUnauthorized = errors.New("protocol: unauthorized signer")
)
