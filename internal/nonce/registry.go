// Package nonce exposes the per-signer replay counter.
package nonce

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// Registry reads and advances signer nonces. Counters start at zero, move up
// by exactly one per successful execution and are never reused.
type Registry struct {
	ledger domain.Ledger
}

// NewRegistry creates a Registry over the given ledger.
func NewRegistry(ledger domain.Ledger) *Registry {
	return &Registry{ledger: ledger}
}

// Current returns the next nonce the signer must use.
func (r *Registry) Current(ctx context.Context, signer common.Address) (uint64, error) {
	var n uint64
	err := r.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		n, err = tx.CurrentNonce(ctx, signer)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("nonce: current %s: %w", signer.Hex(), err)
	}
	return n, nil
}

// Consume advances the signer's counter inside an open ledger transaction.
// The check and the increment happen as one step; a mismatch returns
// ErrInvalidNonce and leaves the counter unchanged.
func (r *Registry) Consume(ctx context.Context, tx domain.NonceStore, signer common.Address, expected uint64) error {
	if err := tx.ConsumeNonce(ctx, signer, expected); err != nil {
		return fmt.Errorf("nonce: consume %s@%d: %w", signer.Hex(), expected, err)
	}
	return nil
}
