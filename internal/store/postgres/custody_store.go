package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// Balance tables all share the (key..., amount) shape. debit only succeeds
// when the row holds at least amount, so balances never go negative.

func (t *ledgerTx) readAmount(ctx context.Context, query string, args ...any) (*big.Int, error) {
	var x *big.Int
	if err := t.q.QueryRow(ctx, query, args...).Scan(num(&x)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return x, nil
}

func (t *ledgerTx) debit(ctx context.Context, query string, short error, args ...any) error {
	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return short
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("postgres: negative or missing amount %v", amount)
	}
	return nil
}

// NativeBalance returns owner's reserve asset balance.
func (t *ledgerTx) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	x, err := t.readAmount(ctx, `SELECT amount::text FROM native_balances WHERE owner = $1`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: native balance %s: %w", owner.Hex(), err)
	}
	return x, nil
}

// Allowance returns what the engine may still pull from owner.
func (t *ledgerTx) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	x, err := t.readAmount(ctx, `SELECT amount::text FROM allowances WHERE owner = $1`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: allowance %s: %w", owner.Hex(), err)
	}
	return x, nil
}

// CreditNative adds amount to owner's balance.
func (t *ledgerTx) CreditNative(ctx context.Context, owner common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO native_balances (owner, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (owner) DO UPDATE SET amount = native_balances.amount + EXCLUDED.amount`,
		owner.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", owner.Hex(), err)
	}
	return nil
}

// SetAllowance replaces owner's allowance.
func (t *ledgerTx) SetAllowance(ctx context.Context, owner common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO allowances (owner, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (owner) DO UPDATE SET amount = EXCLUDED.amount`,
		owner.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("postgres: set allowance %s: %w", owner.Hex(), err)
	}
	return nil
}

// PullNative spends owner's allowance and moves amount to `to`.
func (t *ledgerTx) PullNative(ctx context.Context, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	err := t.debit(ctx,
		`UPDATE allowances SET amount = amount - $2::numeric WHERE owner = $1 AND amount >= $2::numeric`,
		fmt.Errorf("postgres: allowance of %s below %s: %w", owner.Hex(), amount, domain.ErrInsufficientAllowance),
		owner.Hex(), numeric(amount))
	if err != nil {
		return err
	}
	return t.TransferNative(ctx, owner, to, amount)
}

// TransferNative moves amount from one balance to another.
func (t *ledgerTx) TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	err := t.debit(ctx,
		`UPDATE native_balances SET amount = amount - $2::numeric WHERE owner = $1 AND amount >= $2::numeric`,
		fmt.Errorf("postgres: balance of %s below %s: %w", from.Hex(), amount, domain.ErrInsufficientBalance),
		from.Hex(), numeric(amount))
	if err != nil {
		return err
	}
	return t.CreditNative(ctx, to, amount)
}

// TokenBalance returns holder's balance of the market's token.
func (t *ledgerTx) TokenBalance(ctx context.Context, market, holder common.Address) (*big.Int, error) {
	x, err := t.readAmount(ctx,
		`SELECT amount::text FROM token_balances WHERE market = $1 AND holder = $2`,
		market.Hex(), holder.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: token balance %s/%s: %w", market.Hex(), holder.Hex(), err)
	}
	return x, nil
}

// MintTokens credits amount of the market's token to `to`.
func (t *ledgerTx) MintTokens(ctx context.Context, market, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO token_balances (market, holder, amount) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (market, holder) DO UPDATE SET amount = token_balances.amount + EXCLUDED.amount`,
		market.Hex(), to.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("postgres: mint %s to %s: %w", market.Hex(), to.Hex(), err)
	}
	return nil
}

// BurnTokens removes amount of the market's token from `from`.
func (t *ledgerTx) BurnTokens(ctx context.Context, market, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return t.debit(ctx,
		`UPDATE token_balances SET amount = amount - $3::numeric
		 WHERE market = $1 AND holder = $2 AND amount >= $3::numeric`,
		fmt.Errorf("postgres: token balance of %s below %s: %w", from.Hex(), amount, domain.ErrInsufficientBalance),
		market.Hex(), from.Hex(), numeric(amount))
}
