package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WAD is the fixed-point base shared by token and reserve amounts (18 decimals).
var WAD = big.NewInt(1_000_000_000_000_000_000)

// CurveParams defines the shape of a linear bonding curve. Spot price in
// reserve base units per whole token is BasePrice + Slope*supply/WAD.
type CurveParams struct {
	BasePrice *big.Int
	Slope     *big.Int
}

// FeeSchedule holds the fee rates applied to a market, in basis points,
// plus the flat creation fee charged once when the market is created.
type FeeSchedule struct {
	TradingFeeBps int64
	ListingFeeBps int64
	CreationFee   *big.Int
}

// Market is the persisted curve state for one issued token.
type Market struct {
	Address        common.Address
	Creator        common.Address
	Name           string
	Symbol         string
	TokenID        *big.Int
	Curve          CurveParams
	Fees           FeeSchedule
	TotalSupply    *big.Int // tokens issued through the curve
	ReserveBalance *big.Int // reserve asset held against TotalSupply
	SaleAmount     *big.Int
	MaxSupply      *big.Int
	FundingGoal    *big.Int
	FeesAccrued    *big.Int
	Launching      bool
	Halted         bool
	LaunchedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers can mutate the result without
// touching shared state.
func (m Market) Clone() Market {
	c := m
	c.TokenID = cloneInt(m.TokenID)
	c.Curve = CurveParams{BasePrice: cloneInt(m.Curve.BasePrice), Slope: cloneInt(m.Curve.Slope)}
	c.Fees.CreationFee = cloneInt(m.Fees.CreationFee)
	c.TotalSupply = cloneInt(m.TotalSupply)
	c.ReserveBalance = cloneInt(m.ReserveBalance)
	c.SaleAmount = cloneInt(m.SaleAmount)
	c.MaxSupply = cloneInt(m.MaxSupply)
	c.FundingGoal = cloneInt(m.FundingGoal)
	c.FeesAccrued = cloneInt(m.FeesAccrued)
	if m.LaunchedAt != nil {
		t := *m.LaunchedAt
		c.LaunchedAt = &t
	}
	return c
}

// RemainingSale is the part of the sale allocation still available on the curve.
func (m Market) RemainingSale() *big.Int {
	r := new(big.Int).Sub(m.SaleAmount, m.TotalSupply)
	if r.Sign() < 0 {
		return new(big.Int)
	}
	return r
}

// Progress is the launch-gate view of a market.
type Progress struct {
	SoldFractionBps int64
	CurrentReserve  *big.Int
	Goal            *big.Int
	ReachedGoal     bool
	Launching       bool
}

// Handoff records the one-time transfer of a market's remaining supply and
// reserve to the external liquidity venue.
type Handoff struct {
	Market         common.Address
	LiquidityVenue common.Address
	TokenAmount    *big.Int
	ReserveAmount  *big.Int
	ListingFee     *big.Int
	CreatedAt      time.Time
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
