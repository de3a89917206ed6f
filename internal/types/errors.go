package types

import "cosmossdk.io/errors"

// Codespace is the error codespace shared by the vault components.
const Codespace = "clvault"

var (
	ErrUnauthorized       = errors.Register(Codespace, 2, "unauthorized")
	ErrAlreadyBound       = errors.Register(Codespace, 3, "already bound")
	ErrInvalidRatio       = errors.Register(Codespace, 4, "fee ratio exceeds denominator")
	ErrInvalidTickRange   = errors.Register(Codespace, 5, "invalid tick range")
	ErrInvalidWindow      = errors.Register(Codespace, 6, "invalid incentive window")
	ErrRouteNotSet        = errors.Register(Codespace, 7, "swap route not set")
	ErrMalformedPath      = errors.Register(Codespace, 8, "malformed swap path")
	ErrInsufficientShares = errors.Register(Codespace, 9, "insufficient shares")
	ErrSlippageExceeded   = errors.Register(Codespace, 10, "slippage exceeded")
	ErrCapExceeded        = errors.Register(Codespace, 11, "deposit cap exceeded")
	ErrAlreadyStaked      = errors.Register(Codespace, 12, "position already staked")
	ErrIncentiveInactive  = errors.Register(Codespace, 13, "incentive inactive")

	ErrInvalidAmount         = errors.Register(Codespace, 20, "invalid amount")
	ErrNotBound              = errors.Register(Codespace, 21, "not bound")
	ErrReentrantCall         = errors.Register(Codespace, 22, "reentrant call")
	ErrInsufficientLiquidity = errors.Register(Codespace, 23, "insufficient liquidity to cover withdrawal")
	ErrPositionNotFound      = errors.Register(Codespace, 24, "position not found")
	ErrUnknownFeeKind        = errors.Register(Codespace, 25, "unknown fee kind")
	ErrFeeInvariant          = errors.Register(Codespace, 26, "fees exceed exiting shares")
	ErrTokenLimitExceeded    = errors.Register(Codespace, 27, "token limit exceeded")
	ErrNotUnderlying         = errors.Register(Codespace, 28, "token is not an underlying")
	ErrNotStaked             = errors.Register(Codespace, 29, "position not staked")
	ErrInvalidAddress        = errors.Register(Codespace, 30, "invalid address")
)
