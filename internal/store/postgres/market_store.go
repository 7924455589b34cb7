package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const marketCols = `address, creator, name, symbol, token_id::text,
	base_price::text, slope::text, trading_fee_bps, listing_fee_bps, creation_fee::text,
	total_supply::text, reserve_balance::text, sale_amount::text, max_supply::text,
	funding_goal::text, fees_accrued::text, launching, halted, launched_at,
	created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		addr(&m.Address), addr(&m.Creator), &m.Name, &m.Symbol, num(&m.TokenID),
		num(&m.Curve.BasePrice), num(&m.Curve.Slope),
		&m.Fees.TradingFeeBps, &m.Fees.ListingFeeBps, num(&m.Fees.CreationFee),
		num(&m.TotalSupply), num(&m.ReserveBalance), num(&m.SaleAmount), num(&m.MaxSupply),
		num(&m.FundingGoal), num(&m.FeesAccrued), &m.Launching, &m.Halted, &m.LaunchedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// GetMarket reads one market. Inside Atomic the row is locked until commit.
func (t *ledgerTx) GetMarket(ctx context.Context, address common.Address) (domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE address = $1`
	if t.lock {
		query += ` FOR UPDATE`
	}
	m, err := scanMarket(t.q.QueryRow(ctx, query, address.Hex()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", address.Hex(), domain.ErrMarketNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", address.Hex(), err)
	}
	return m, nil
}

// ListMarkets returns markets newest first.
func (t *ledgerTx) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query, args := appendListOpts(`SELECT `+marketCols+` FROM markets WHERE 1=1`, nil,
		opts, "created_at", "created_at DESC, address")

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return out, nil
}

// InsertMarket creates a market row. A second insert for the same address
// fails with ErrMarketExists.
func (t *ledgerTx) InsertMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			address, creator, name, symbol, token_id,
			base_price, slope, trading_fee_bps, listing_fee_bps, creation_fee,
			total_supply, reserve_balance, sale_amount, max_supply,
			funding_goal, fees_accrued, launching, halted, launched_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric,
			$6::numeric, $7::numeric, $8, $9, $10::numeric,
			$11::numeric, $12::numeric, $13::numeric, $14::numeric,
			$15::numeric, $16::numeric, $17, $18, $19,
			$20, $21
		)`
	_, err := t.q.Exec(ctx, query,
		m.Address.Hex(), m.Creator.Hex(), m.Name, m.Symbol, numeric(m.TokenID),
		numeric(m.Curve.BasePrice), numeric(m.Curve.Slope),
		m.Fees.TradingFeeBps, m.Fees.ListingFeeBps, numeric(m.Fees.CreationFee),
		numeric(m.TotalSupply), numeric(m.ReserveBalance), numeric(m.SaleAmount), numeric(m.MaxSupply),
		numeric(m.FundingGoal), numeric(m.FeesAccrued), m.Launching, m.Halted, m.LaunchedAt,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: market %s: %w", m.Address.Hex(), domain.ErrMarketExists)
		}
		return fmt.Errorf("postgres: insert market %s: %w", m.Address.Hex(), err)
	}
	return nil
}

// UpdateMarket writes the mutable curve state of m.
func (t *ledgerTx) UpdateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			total_supply    = $2::numeric,
			reserve_balance = $3::numeric,
			fees_accrued    = $4::numeric,
			launching       = $5,
			halted          = $6,
			launched_at     = $7,
			updated_at      = $8
		WHERE address = $1`
	tag, err := t.q.Exec(ctx, query,
		m.Address.Hex(), numeric(m.TotalSupply), numeric(m.ReserveBalance), numeric(m.FeesAccrued),
		m.Launching, m.Halted, m.LaunchedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.Address.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %s: %w", m.Address.Hex(), domain.ErrMarketNotFound)
	}
	return nil
}
