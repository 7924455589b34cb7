package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// CurrentNonce returns the signer's counter, zero if it has never executed.
func (t *ledgerTx) CurrentNonce(ctx context.Context, signer common.Address) (uint64, error) {
	var s string
	err := t.q.QueryRow(ctx, `SELECT nonce::text FROM nonces WHERE signer = $1`, signer.Hex()).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: current nonce %s: %w", signer.Hex(), err)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgres: parse nonce %s: %w", signer.Hex(), err)
	}
	return n, nil
}

// ConsumeNonce advances the counter from expected to expected+1. The first
// use inserts the row; later uses compare and set, so two transactions
// racing on the same nonce cannot both succeed.
func (t *ledgerTx) ConsumeNonce(ctx context.Context, signer common.Address, expected uint64) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == 0 {
		tag, err = t.q.Exec(ctx,
			`INSERT INTO nonces (signer, nonce) VALUES ($1, 1) ON CONFLICT (signer) DO NOTHING`,
			signer.Hex())
	} else {
		tag, err = t.q.Exec(ctx,
			`UPDATE nonces SET nonce = nonce + 1, updated_at = NOW() WHERE signer = $1 AND nonce = $2::numeric`,
			signer.Hex(), strconv.FormatUint(expected, 10))
	}
	if err != nil {
		return fmt.Errorf("postgres: consume nonce %s: %w", signer.Hex(), err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("postgres: nonce %d for %s already used: %w", expected, signer.Hex(), domain.ErrInvalidNonce)
	}
	return nil
}
