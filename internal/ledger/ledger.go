// Package ledger applies curve trades to market state.
package ledger

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/launchpad/internal/curve"
	"github.com/alanyoungcy/launchpad/internal/domain"
)

const bpsDenominator = 10_000

// BuyResult describes a buy priced against a market.
type BuyResult struct {
	ReserveIn *big.Int
	TokensOut *big.Int
	Cost      *big.Int // paid into the curve reserve
	Fee       *big.Int
	Refund    *big.Int // ReserveIn - Cost - Fee
	Price     *big.Int // WAD-scaled spot price after the buy
}

// SellResult describes a sell priced against a market.
type SellResult struct {
	TokensIn *big.Int
	Gross    *big.Int // removed from the curve reserve
	Fee      *big.Int
	Payout   *big.Int // Gross - Fee
	Price    *big.Int
}

// FeeOn returns amount*bps/10000 rounded up.
func FeeOn(amount *big.Int, bps int64) *big.Int {
	if bps <= 0 || amount.Sign() <= 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(amount, big.NewInt(bps))
	q, r := num.QuoRem(num, big.NewInt(bpsDenominator), new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// QuoteBuy prices spending reserveIn on m without mutating it. The buy is
// capped at the remaining sale allocation.
func QuoteBuy(m domain.Market, reserveIn *big.Int) (BuyResult, error) {
	if err := tradable(m); err != nil {
		return BuyResult{}, err
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 {
		return BuyResult{}, fmt.Errorf("ledger: buy: %w", domain.ErrZeroAmount)
	}
	remaining := m.RemainingSale()
	if remaining.Sign() == 0 {
		return BuyResult{}, fmt.Errorf("ledger: buy: sale allocation exhausted: %w", domain.ErrNotLaunching)
	}

	bps := m.Fees.TradingFeeBps
	budget := new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator))
	budget.Quo(budget, big.NewInt(bpsDenominator+bps))

	var tokens, cost, fee *big.Int
	for {
		tokens = curve.TokensForReserve(m.Curve, m.TotalSupply, budget)
		if tokens.Cmp(remaining) > 0 {
			tokens.Set(remaining)
		}
		cost, fee = buyCost(m, tokens)

		// Fee rounding can push the total a few units past reserveIn;
		// shrink the budget by the overshoot and price again.
		over := new(big.Int).Add(cost, fee)
		over.Sub(over, reserveIn)
		if over.Sign() <= 0 || tokens.Sign() == 0 {
			break
		}
		budget.Sub(cost, over)
	}
	if tokens.Sign() == 0 {
		return BuyResult{}, fmt.Errorf("ledger: buy: %s buys no tokens: %w", reserveIn, domain.ErrInsufficientPayment)
	}

	refund := new(big.Int).Sub(reserveIn, cost)
	refund.Sub(refund, fee)

	after := new(big.Int).Add(m.TotalSupply, tokens)
	return BuyResult{
		ReserveIn: new(big.Int).Set(reserveIn),
		TokensOut: tokens,
		Cost:      cost,
		Fee:       fee,
		Refund:    refund,
		Price:     curve.Price(m.Curve, after),
	}, nil
}

// ApplyBuy prices a buy and applies it to m. It fails with
// ErrSlippageExceeded when fewer than minTokensOut tokens would be issued.
func ApplyBuy(m *domain.Market, reserveIn, minTokensOut *big.Int) (BuyResult, error) {
	res, err := QuoteBuy(*m, reserveIn)
	if err != nil {
		return BuyResult{}, err
	}
	if minTokensOut != nil && res.TokensOut.Cmp(minTokensOut) < 0 {
		return BuyResult{}, fmt.Errorf("ledger: buy: %s tokens below minimum %s: %w",
			res.TokensOut, minTokensOut, domain.ErrSlippageExceeded)
	}

	next := m.Clone()
	next.TotalSupply.Add(next.TotalSupply, res.TokensOut)
	next.ReserveBalance.Add(next.ReserveBalance, res.Cost)
	next.FeesAccrued.Add(next.FeesAccrued, res.Fee)
	if err := CheckInvariant(next); err != nil {
		return BuyResult{}, err
	}
	*m = next
	return res, nil
}

// QuoteSell prices returning tokensIn to the curve without mutating m.
func QuoteSell(m domain.Market, tokensIn *big.Int) (SellResult, error) {
	if err := tradable(m); err != nil {
		return SellResult{}, err
	}
	if tokensIn == nil || tokensIn.Sign() <= 0 {
		return SellResult{}, fmt.Errorf("ledger: sell: %w", domain.ErrZeroAmount)
	}
	if tokensIn.Cmp(m.TotalSupply) > 0 {
		return SellResult{}, fmt.Errorf("ledger: sell: %s exceeds supply %s: %w",
			tokensIn, m.TotalSupply, domain.ErrInsufficientBalance)
	}

	gross, err := curve.ReserveForTokens(m.Curve, m.TotalSupply, tokensIn)
	if err != nil {
		return SellResult{}, fmt.Errorf("ledger: sell: %w", err)
	}
	if gross.Cmp(m.ReserveBalance) > 0 {
		return SellResult{}, fmt.Errorf("ledger: sell: payout %s exceeds reserve %s: %w",
			gross, m.ReserveBalance, domain.ErrInvariantBroken)
	}

	fee := FeeOn(gross, m.Fees.TradingFeeBps)
	payout := new(big.Int).Sub(gross, fee)
	after := new(big.Int).Sub(m.TotalSupply, tokensIn)
	return SellResult{
		TokensIn: new(big.Int).Set(tokensIn),
		Gross:    gross,
		Fee:      fee,
		Payout:   payout,
		Price:    curve.Price(m.Curve, after),
	}, nil
}

// ApplySell prices a sell and applies it to m. It fails with
// ErrSlippageExceeded when the net payout is below minReserveOut.
func ApplySell(m *domain.Market, tokensIn, minReserveOut *big.Int) (SellResult, error) {
	res, err := QuoteSell(*m, tokensIn)
	if err != nil {
		return SellResult{}, err
	}
	if minReserveOut != nil && res.Payout.Cmp(minReserveOut) < 0 {
		return SellResult{}, fmt.Errorf("ledger: sell: payout %s below minimum %s: %w",
			res.Payout, minReserveOut, domain.ErrSlippageExceeded)
	}

	next := m.Clone()
	next.TotalSupply.Sub(next.TotalSupply, res.TokensIn)
	next.ReserveBalance.Sub(next.ReserveBalance, res.Gross)
	next.FeesAccrued.Add(next.FeesAccrued, res.Fee)
	if err := CheckInvariant(next); err != nil {
		return SellResult{}, err
	}
	*m = next
	return res, nil
}

// CheckInvariant verifies that the reserve backs the issued supply under the
// curve formula.
func CheckInvariant(m domain.Market) error {
	if m.TotalSupply.Sign() < 0 || m.ReserveBalance.Sign() < 0 {
		return fmt.Errorf("ledger: negative supply or reserve: %w", domain.ErrInvariantBroken)
	}
	if m.TotalSupply.Cmp(m.SaleAmount) > 0 {
		return fmt.Errorf("ledger: supply %s above sale amount %s: %w",
			m.TotalSupply, m.SaleAmount, domain.ErrInvariantBroken)
	}
	backing := curve.Integral(m.Curve, new(big.Int), m.TotalSupply)
	if m.ReserveBalance.Cmp(backing) < 0 {
		return fmt.Errorf("ledger: reserve %s below curve integral %s: %w",
			m.ReserveBalance, backing, domain.ErrInvariantBroken)
	}
	return nil
}

func tradable(m domain.Market) error {
	if m.Halted {
		return fmt.Errorf("ledger: market %s: %w", m.Address.Hex(), domain.ErrMarketHalted)
	}
	if !m.Launching {
		return fmt.Errorf("ledger: market %s: %w", m.Address.Hex(), domain.ErrNotLaunching)
	}
	return nil
}

func buyCost(m domain.Market, tokens *big.Int) (cost, fee *big.Int) {
	cost = curve.CostForTokens(m.Curve, m.TotalSupply, tokens)
	return cost, FeeOn(cost, m.Fees.TradingFeeBps)
}
