package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	// Authorization failures.
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrExpired          = errors.New("intent expired")
	ErrRelayerMismatch  = errors.New("relayer mismatch")
	ErrInvalidNonce     = errors.New("invalid nonce")

	// Trade failures.
	ErrZeroAmount            = errors.New("zero amount")
	ErrInsufficientPayment   = errors.New("insufficient payment")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotLaunching          = errors.New("market not launching")
	ErrAlreadyLaunched       = errors.New("market already launched")
	ErrGoalNotReached        = errors.New("funding goal not reached")
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketExists          = errors.New("market already exists")
	ErrInvalidIntent         = errors.New("invalid intent")
	ErrInvariantBroken       = errors.New("reserve invariant broken")

	// ErrMarketHalted is returned for actions on a market an earlier broken
	// invariant already halted. It unwraps to ErrInvariantBroken.
	ErrMarketHalted = fmt.Errorf("market halted: %w", ErrInvariantBroken)
)

// failureKinds maps sentinel errors to the stable codes returned to relayers.
var failureKinds = []struct {
	err  error
	kind string
}{
	{ErrSignatureInvalid, "SIGNATURE_INVALID"},
	{ErrExpired, "EXPIRED"},
	{ErrRelayerMismatch, "RELAYER_MISMATCH"},
	{ErrInvalidNonce, "INVALID_NONCE"},
	{ErrZeroAmount, "ZERO_AMOUNT"},
	{ErrInsufficientPayment, "INSUFFICIENT_PAYMENT"},
	{ErrSlippageExceeded, "SLIPPAGE_EXCEEDED"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientAllowance, "INSUFFICIENT_ALLOWANCE"},
	{ErrNotLaunching, "NOT_LAUNCHING"},
	{ErrAlreadyLaunched, "ALREADY_LAUNCHED"},
	{ErrGoalNotReached, "GOAL_NOT_REACHED"},
	{ErrMarketNotFound, "MARKET_NOT_FOUND"},
	{ErrMarketExists, "MARKET_EXISTS"},
	{ErrInvalidIntent, "INVALID_INTENT"},
	{ErrInvariantBroken, "INVARIANT_BROKEN"},
	{ErrRateLimited, "RATE_LIMITED"},
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrNotFound, "NOT_FOUND"},
}

// FailureKind returns the wire code for err, or "INTERNAL" when err does not
// wrap any known sentinel.
func FailureKind(err error) string {
	for _, fk := range failureKinds {
		if errors.Is(err, fk.err) {
			return fk.kind
		}
	}
	return "INTERNAL"
}

// ErrorForKind is the inverse of FailureKind. It returns nil for unknown
// codes, including "INTERNAL".
func ErrorForKind(kind string) error {
	for _, fk := range failureKinds {
		if fk.kind == kind {
			return fk.err
		}
	}
	return nil
}

// RejectError records the execution stage at which a relayed action was
// rejected. It unwraps to the underlying failure.
type RejectError struct {
	Action IntentKind
	Stage  Stage
	Err    error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s rejected at %s: %v", e.Action, e.Stage, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }
