// Package launch decides when a market leaves the curve and hands its
// remaining supply and reserve to the liquidity venue.
package launch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
)

// CheckProgress reports how far m is towards its funding goal. A market
// whose sale allocation is exhausted has also reached its goal.
func CheckProgress(m domain.Market) domain.Progress {
	p := domain.Progress{
		CurrentReserve: new(big.Int).Set(m.ReserveBalance),
		Goal:           new(big.Int).Set(m.FundingGoal),
		Launching:      m.Launching,
	}
	if m.SaleAmount.Sign() > 0 {
		frac := new(big.Int).Mul(m.TotalSupply, big.NewInt(10_000))
		frac.Quo(frac, m.SaleAmount)
		p.SoldFractionBps = frac.Int64()
	}
	p.ReachedGoal = m.ReserveBalance.Cmp(m.FundingGoal) >= 0 || m.RemainingSale().Sign() == 0
	return p
}

// Gate performs the one-time migration of a funded market.
type Gate struct {
	venue        common.Address
	feeRecipient common.Address
	now          func() time.Time
}

// NewGate creates a Gate that hands liquidity to venue and routes listing
// fees to feeRecipient.
func NewGate(venue, feeRecipient common.Address) *Gate {
	return &Gate{venue: venue, feeRecipient: feeRecipient, now: time.Now}
}

// WithClock overrides the time source stamped on handoffs.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Venue returns the liquidity venue address.
func (g *Gate) Venue() common.Address { return g.venue }

// Migrate freezes m and transfers its remaining supply and reserve to the
// venue inside tx. It fails with ErrAlreadyLaunched if m has already left
// the curve and ErrGoalNotReached if it is not yet funded. On success m is
// updated in place and persisted.
func (g *Gate) Migrate(ctx context.Context, tx domain.LedgerTx, m *domain.Market) (domain.Handoff, error) {
	if !m.Launching {
		return domain.Handoff{}, fmt.Errorf("launch: migrate %s: %w", m.Address.Hex(), domain.ErrAlreadyLaunched)
	}
	if m.Halted {
		return domain.Handoff{}, fmt.Errorf("launch: migrate %s: %w", m.Address.Hex(), domain.ErrMarketHalted)
	}
	if !CheckProgress(*m).ReachedGoal {
		return domain.Handoff{}, fmt.Errorf("launch: migrate %s: reserve %s of %s: %w",
			m.Address.Hex(), m.ReserveBalance, m.FundingGoal, domain.ErrGoalNotReached)
	}

	now := g.now().UTC()
	listingFee := ledger.FeeOn(m.ReserveBalance, m.Fees.ListingFeeBps)
	h := domain.Handoff{
		Market:         m.Address,
		LiquidityVenue: g.venue,
		TokenAmount:    new(big.Int).Sub(m.MaxSupply, m.TotalSupply),
		ReserveAmount:  new(big.Int).Sub(m.ReserveBalance, listingFee),
		ListingFee:     listingFee,
		CreatedAt:      now,
	}

	if err := tx.TransferNative(ctx, m.Address, g.venue, h.ReserveAmount); err != nil {
		return domain.Handoff{}, fmt.Errorf("launch: transfer reserve: %w", err)
	}
	if err := tx.TransferNative(ctx, m.Address, g.feeRecipient, listingFee); err != nil {
		return domain.Handoff{}, fmt.Errorf("launch: transfer listing fee: %w", err)
	}
	if h.TokenAmount.Sign() > 0 {
		if err := tx.MintTokens(ctx, m.Address, g.venue, h.TokenAmount); err != nil {
			return domain.Handoff{}, fmt.Errorf("launch: mint liquidity supply: %w", err)
		}
	}
	if err := tx.RecordHandoff(ctx, h); err != nil {
		return domain.Handoff{}, fmt.Errorf("launch: record handoff: %w", err)
	}

	next := m.Clone()
	next.Launching = false
	next.LaunchedAt = &now
	next.FeesAccrued.Add(next.FeesAccrued, listingFee)
	next.UpdatedAt = now
	if err := tx.UpdateMarket(ctx, next); err != nil {
		return domain.Handoff{}, fmt.Errorf("launch: update market: %w", err)
	}
	*m = next
	return h, nil
}
