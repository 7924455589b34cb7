package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad int " + s)
	}
	return v
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.WAD)
}

func defaultParams() domain.CurveParams {
	return domain.CurveParams{BasePrice: big.NewInt(100_000_000_000), Slope: big.NewInt(100_000)}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  domain.CurveParams
		wantErr bool
	}{
		{"linear", defaultParams(), false},
		{"flat", domain.CurveParams{BasePrice: big.NewInt(1), Slope: big.NewInt(0)}, true},
		{"slope only", domain.CurveParams{BasePrice: big.NewInt(0), Slope: big.NewInt(5)}, false},
		{"zero", domain.CurveParams{BasePrice: big.NewInt(0), Slope: big.NewInt(0)}, true},
		{"negative", domain.CurveParams{BasePrice: big.NewInt(-1), Slope: big.NewInt(1)}, true},
		{"negative slope", domain.CurveParams{BasePrice: big.NewInt(1), Slope: big.NewInt(-1)}, true},
		{"missing", domain.CurveParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokensForReserve_ExampleScenario(t *testing.T) {
	p := defaultParams()
	supply := big.NewInt(0)
	reserveIn := wei("100000000000000") // 1e-4

	first := TokensForReserve(p, supply, reserveIn)

	// ~1000 tokens, within 0.1%.
	lower := tokens(999)
	upper := tokens(1000)
	assert.True(t, first.Cmp(lower) >= 0, "got %s", first)
	assert.True(t, first.Cmp(upper) <= 0, "got %s", first)

	supply.Add(supply, first)
	second := TokensForReserve(p, supply, reserveIn)
	assert.Equal(t, -1, second.Cmp(first), "second buy must yield fewer tokens")
}

func TestTokensForReserve_IsExactFloor(t *testing.T) {
	p := defaultParams()
	cases := []struct {
		supply  *big.Int
		reserve *big.Int
	}{
		{big.NewInt(0), big.NewInt(1)},
		{big.NewInt(0), wei("123456789012345")},
		{tokens(1_000_000), wei("5000000000000000000")},
		{tokens(42), big.NewInt(99_999)},
		{wei("777777777777777777777"), wei("31415926535897932")},
	}
	for _, c := range cases {
		got := TokensForReserve(p, c.supply, c.reserve)
		cost := CostForTokens(p, c.supply, got)
		assert.True(t, cost.Cmp(c.reserve) <= 0, "cost %s exceeds reserve %s", cost, c.reserve)

		next := new(big.Int).Add(got, big.NewInt(1))
		nextCost := CostForTokens(p, c.supply, next)
		assert.Equal(t, 1, nextCost.Cmp(c.reserve), "one more token must cost more than reserve")
	}
}

func TestTokensForReserve_FlatCurveYieldsNothing(t *testing.T) {
	p := domain.CurveParams{BasePrice: wei("2000000000000000000"), Slope: big.NewInt(0)}
	got := TokensForReserve(p, tokens(10), wei("5000000000000000000"))
	assert.Equal(t, 0, got.Sign())
}

func TestTokensForReserve_ZeroInput(t *testing.T) {
	assert.Equal(t, 0, TokensForReserve(defaultParams(), big.NewInt(0), big.NewInt(0)).Sign())
}

func TestPrice_Monotonic(t *testing.T) {
	p := defaultParams()
	supply := big.NewInt(0)
	prev := Price(p, supply)
	assert.Equal(t, new(big.Int).Mul(p.BasePrice, domain.WAD), prev)

	for i := 0; i < 20; i++ {
		out := TokensForReserve(p, supply, wei("1000000000000000000"))
		require.Positive(t, out.Sign())
		supply.Add(supply, out)
		price := Price(p, supply)
		assert.Equal(t, 1, price.Cmp(prev), "price must strictly increase")
		prev = price
	}
}

func TestPrice_SmallBuyStrictlyIncreases(t *testing.T) {
	p := defaultParams()
	for _, start := range []*big.Int{big.NewInt(0), tokens(1_000), wei("400000000000000000000000000")} {
		out := TokensForReserve(p, start, big.NewInt(1_000_000))
		require.Positive(t, out.Sign(), "supply %s", start)

		before := Price(p, start)
		after := Price(p, new(big.Int).Add(start, out))
		assert.Equal(t, 1, after.Cmp(before), "supply %s: %s -> %s", start, before, after)
	}
}

func TestPrice_OneBaseUnit(t *testing.T) {
	p := defaultParams()
	diff := new(big.Int).Sub(Price(p, big.NewInt(1)), Price(p, big.NewInt(0)))
	assert.Equal(t, p.Slope, diff)
}

func TestRoundTripNeverProfits(t *testing.T) {
	p := defaultParams()
	supplies := []*big.Int{big.NewInt(0), tokens(1), wei("1234567890123456789012")}
	amounts := []*big.Int{big.NewInt(1), big.NewInt(3), tokens(1), wei("987654321987654321")}

	for _, s := range supplies {
		for _, amt := range amounts {
			cost := CostForTokens(p, s, amt)
			after := new(big.Int).Add(s, amt)
			back, err := ReserveForTokens(p, after, amt)
			require.NoError(t, err)
			assert.True(t, back.Cmp(cost) <= 0, "sell %s > buy %s", back, cost)
		}
	}
}

func TestReserveForTokens_ExceedsSupply(t *testing.T) {
	_, err := ReserveForTokens(defaultParams(), tokens(1), tokens(2))
	assert.ErrorIs(t, err, ErrExceedsSupply)
}

func TestIntegral_Additive(t *testing.T) {
	p := defaultParams()
	a, b, c := big.NewInt(0), tokens(500), tokens(1500)

	whole := Integral(p, a, c)
	parts := new(big.Int).Add(Integral(p, a, b), Integral(p, b, c))

	diff := new(big.Int).Sub(whole, parts)
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(1)) <= 0, "diff %s", diff)
}
