// Package curve prices tokens along a linear bonding curve.
//
// Spot price in reserve base units per whole token is
//
//	p(s) = basePrice + slope*s/WAD
//
// where s is the supply in token base units. Price reports p(s) as a WAD
// fixed-point number so that every base unit of supply moves it. The reserve needed to move the
// supply from s0 to s1 is the integral of p over that range:
//
//	I(s0, s1) = (2*WAD*basePrice*(s1-s0) + slope*(s1^2-s0^2)) / (2*WAD^2)
//
// Every function is pure and rounds in the protocol's favour: tokens out are
// rounded down and reserve required is rounded up, while reserve paid out is
// rounded down.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

var (
	// ErrInvalidParams is returned for curves whose price is not strictly
	// increasing in supply.
	ErrInvalidParams = errors.New("curve: invalid parameters")
	// ErrExceedsSupply is returned when pricing a sale of more tokens than
	// are outstanding.
	ErrExceedsSupply = errors.New("curve: amount exceeds supply")
)

var (
	wad       = domain.WAD
	twoWad    = new(big.Int).Mul(big.NewInt(2), domain.WAD)
	integralD = new(big.Int).Mul(twoWad, domain.WAD) // 2*WAD^2
)

// Validate checks that p describes a usable curve.
func Validate(p domain.CurveParams) error {
	if p.BasePrice == nil || p.Slope == nil {
		return fmt.Errorf("%w: missing base price or slope", ErrInvalidParams)
	}
	if p.BasePrice.Sign() < 0 {
		return fmt.Errorf("%w: negative base price", ErrInvalidParams)
	}
	if p.Slope.Sign() <= 0 {
		return fmt.Errorf("%w: slope must be positive", ErrInvalidParams)
	}
	return nil
}

// Price returns the spot price at the given supply scaled by WAD, that is
// basePrice*WAD + slope*supply. The value is exact.
func Price(p domain.CurveParams, supply *big.Int) *big.Int {
	out := new(big.Int).Mul(p.Slope, supply)
	return out.Add(out, new(big.Int).Mul(p.BasePrice, wad))
}

// Integral returns floor(I(from, to)). It requires from <= to.
func Integral(p domain.CurveParams, from, to *big.Int) *big.Int {
	return new(big.Int).Quo(numerator(p, from, to), integralD)
}

// CostForTokens returns the reserve required to buy tokens at the given
// supply, rounded up.
func CostForTokens(p domain.CurveParams, supply, tokens *big.Int) *big.Int {
	to := new(big.Int).Add(supply, tokens)
	return ceilDiv(numerator(p, supply, to), integralD)
}

// ReserveForTokens returns the reserve paid out for selling tokensIn at the
// given supply, rounded down.
func ReserveForTokens(p domain.CurveParams, supply, tokensIn *big.Int) (*big.Int, error) {
	if tokensIn.Cmp(supply) > 0 {
		return nil, fmt.Errorf("%w: selling %s of %s", ErrExceedsSupply, tokensIn, supply)
	}
	from := new(big.Int).Sub(supply, tokensIn)
	return Integral(p, from, supply), nil
}

// TokensForReserve returns the largest token amount t such that buying t
// tokens at the given supply costs at most reserveIn.
func TokensForReserve(p domain.CurveParams, supply, reserveIn *big.Int) *big.Int {
	if reserveIn.Sign() <= 0 || Validate(p) != nil {
		return new(big.Int)
	}
	target := new(big.Int).Mul(reserveIn, integralD)

	// Solve k*x^2 + 2*WAD*b*x - C <= 0 for x = supply + t, where
	// C = target + k*s^2 + 2*WAD*b*s.
	wb := new(big.Int).Mul(wad, p.BasePrice)
	c := new(big.Int).Mul(p.Slope, new(big.Int).Mul(supply, supply))
	c.Add(c, new(big.Int).Mul(new(big.Int).Lsh(wb, 1), supply))
	c.Add(c, target)

	disc := new(big.Int).Mul(wb, wb)
	disc.Add(disc, new(big.Int).Mul(p.Slope, c))
	x := new(big.Int).Sqrt(disc)
	x.Sub(x, wb)
	x.Quo(x, p.Slope)

	t := x.Sub(x, supply)
	if t.Sign() < 0 {
		t.SetInt64(0)
	}

	// Integer sqrt is floor-exact but the division above can land one step
	// off; settle on the exact floor.
	one := big.NewInt(1)
	for {
		next := new(big.Int).Add(t, one)
		if numerator(p, supply, new(big.Int).Add(supply, next)).Cmp(target) > 0 {
			break
		}
		t = next
	}
	for t.Sign() > 0 && numerator(p, supply, new(big.Int).Add(supply, t)).Cmp(target) > 0 {
		t.Sub(t, one)
	}
	return t
}

// numerator returns 2*WAD*b*(to-from) + k*(to^2-from^2).
func numerator(p domain.CurveParams, from, to *big.Int) *big.Int {
	delta := new(big.Int).Sub(to, from)
	lin := new(big.Int).Mul(twoWad, p.BasePrice)
	lin.Mul(lin, delta)

	quad := new(big.Int).Mul(to, to)
	quad.Sub(quad, new(big.Int).Mul(from, from))
	quad.Mul(quad, p.Slope)

	return lin.Add(lin, quad)
}

func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
