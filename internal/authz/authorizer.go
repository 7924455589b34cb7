// Package authz validates relayer-submitted, EIP-712 signed intents.
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/domain"
)

// Authorizer checks intents against the signing domain, the submitting
// relayer and the signer's current nonce. It holds no state of its own and
// never mutates anything, so a relayer may call Verify as often as it likes.
type Authorizer struct {
	now func() time.Time
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithClock overrides the time source used for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// New creates an Authorizer.
func New(opts ...Option) *Authorizer {
	a := &Authorizer{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Recover returns the address that signed intent under d.
func (a *Authorizer) Recover(intent domain.Intent, sig []byte, d domain.SigningDomain) (common.Address, error) {
	digest, err := crypto.TypedDataHash(d, intent)
	if err != nil {
		return common.Address{}, fmt.Errorf("authz: %w: %v", domain.ErrInvalidIntent, err)
	}
	signer, err := crypto.RecoverSigner(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("authz: %w: %v", domain.ErrSignatureInvalid, err)
	}
	return signer, nil
}

// Verify authorizes intent for execution by relayer. Checks run in order and
// the first failure is returned:
//
//  1. the deadline has not passed (ErrExpired)
//  2. relayer is the one the intent names (ErrRelayerMismatch)
//  3. the signature recovers to the intent's signer (ErrSignatureInvalid)
//  4. the intent's nonce is the signer's current nonce (ErrInvalidNonce)
func (a *Authorizer) Verify(
	ctx context.Context,
	nonces domain.NonceStore,
	intent domain.Intent,
	sig []byte,
	d domain.SigningDomain,
	relayer common.Address,
) (common.Address, error) {
	now := a.now().Unix()
	if now < 0 || uint64(now) > intent.IntentDeadline() {
		return common.Address{}, fmt.Errorf("authz: deadline %d passed at %d: %w",
			intent.IntentDeadline(), now, domain.ErrExpired)
	}
	if intent.BoundRelayer() != relayer {
		return common.Address{}, fmt.Errorf("authz: intent bound to %s, submitted by %s: %w",
			intent.BoundRelayer().Hex(), relayer.Hex(), domain.ErrRelayerMismatch)
	}

	signer, err := a.Recover(intent, sig, d)
	if err != nil {
		return common.Address{}, err
	}
	if signer != intent.Signer() {
		return common.Address{}, fmt.Errorf("authz: recovered %s, intent claims %s: %w",
			signer.Hex(), intent.Signer().Hex(), domain.ErrSignatureInvalid)
	}

	current, err := nonces.CurrentNonce(ctx, signer)
	if err != nil {
		return common.Address{}, fmt.Errorf("authz: read nonce: %w", err)
	}
	if current != intent.IntentNonce() {
		return common.Address{}, fmt.Errorf("authz: nonce %d, current %d: %w",
			intent.IntentNonce(), current, domain.ErrInvalidNonce)
	}
	return signer, nil
}
