package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		in     *big.Int
		places int32
		want   string
	}{
		{nil, 4, "0"},
		{new(big.Int).Mul(big.NewInt(10), WAD), 4, "10"},
		{big.NewInt(1_500_000_000_000_000_000), 4, "1.5"},
		{big.NewInt(100_000_000_000), 18, "0.0000001"},
		{big.NewInt(123_456_789_000_000_000), 3, "0.123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUnits(tt.in, tt.places))
	}
}

func TestFormatPrice(t *testing.T) {
	price := new(big.Int).Mul(big.NewInt(100_000_000_000), WAD)
	assert.Equal(t, "0.0000001", FormatPrice(price, 18))
	assert.Equal(t, "0", FormatPrice(nil, 4))
}

func TestParseUnits(t *testing.T) {
	x, err := ParseUnits("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", x.String())

	x, err = ParseUnits("0.0000000000000000019")
	require.NoError(t, err)
	assert.Equal(t, "1", x.String())

	_, err = ParseUnits("abc")
	assert.Error(t, err)
}
