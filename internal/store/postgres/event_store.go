package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const eventCols = `id::text, kind, market, signer, relayer, recipient, nonce::bigint,
	native_amount::text, token_amount::text, fee::text, refund::text, price::text,
	total_supply::text, reserve_balance::text, created_at`

func scanEvents(rows pgx.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var (
			e     domain.Event
			kind  string
			nonce int64
		)
		if err := rows.Scan(
			&e.ID, &kind, addr(&e.Market), addr(&e.Signer), addr(&e.Relayer), addr(&e.Recipient), &nonce,
			num(&e.NativeAmount), num(&e.TokenAmount), num(&e.Fee), num(&e.Refund), num(&e.Price),
			num(&e.TotalSupply), num(&e.ReserveBalance), &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.Nonce = uint64(nonce)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: events rows: %w", err)
	}
	return out, nil
}

// AppendEvent adds e to the log.
func (t *ledgerTx) AppendEvent(ctx context.Context, e domain.Event) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("postgres: event id %q: %w", e.ID, err)
	}
	const query = `
		INSERT INTO events (
			id, kind, market, signer, relayer, recipient, nonce,
			native_amount, token_amount, fee, refund, price,
			total_supply, reserve_balance, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::numeric,
			$8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric,
			$13::numeric, $14::numeric, $15
		)`
	_, err = t.q.Exec(ctx, query,
		id.String(), string(e.Kind), e.Market.Hex(), e.Signer.Hex(), e.Relayer.Hex(), e.Recipient.Hex(),
		fmt.Sprint(e.Nonce),
		numeric(e.NativeAmount), numeric(e.TokenAmount), numeric(e.Fee), numeric(e.Refund), numeric(e.Price),
		numeric(e.TotalSupply), numeric(e.ReserveBalance), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

// ListEvents returns a market's events newest first.
func (t *ledgerTx) ListEvents(ctx context.Context, market common.Address, opts domain.ListOpts) ([]domain.Event, error) {
	query, args := appendListOpts(`SELECT `+eventCols+` FROM events WHERE market = $1`,
		[]any{market.Hex()}, opts, "created_at", "seq DESC")
	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events %s: %w", market.Hex(), err)
	}
	return scanEvents(rows)
}

// RecordHandoff persists the launch record of a market.
func (t *ledgerTx) RecordHandoff(ctx context.Context, h domain.Handoff) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO handoffs (market, liquidity_venue, token_amount, reserve_amount, listing_fee, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)`,
		h.Market.Hex(), h.LiquidityVenue.Hex(),
		numeric(h.TokenAmount), numeric(h.ReserveAmount), numeric(h.ListingFee), h.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: handoff %s: %w", h.Market.Hex(), domain.ErrAlreadyLaunched)
		}
		return fmt.Errorf("postgres: record handoff %s: %w", h.Market.Hex(), err)
	}
	return nil
}

// GetHandoff returns the launch record of a market.
func (t *ledgerTx) GetHandoff(ctx context.Context, market common.Address) (domain.Handoff, error) {
	var h domain.Handoff
	err := t.q.QueryRow(ctx, `
		SELECT market, liquidity_venue, token_amount::text, reserve_amount::text, listing_fee::text, created_at
		FROM handoffs WHERE market = $1`, market.Hex(),
	).Scan(addr(&h.Market), addr(&h.LiquidityVenue), num(&h.TokenAmount), num(&h.ReserveAmount), num(&h.ListingFee), &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Handoff{}, fmt.Errorf("postgres: handoff %s: %w", market.Hex(), domain.ErrNotFound)
		}
		return domain.Handoff{}, fmt.Errorf("postgres: get handoff %s: %w", market.Hex(), err)
	}
	return h, nil
}
