package launch

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

var (
	marketAddr = common.HexToAddress("0x3a4b")
	venue      = common.HexToAddress("0x9001")
	feeSink    = common.HexToAddress("0xfee")
)

func whole(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.WAD)
}

func newMarket() domain.Market {
	tpl := ledger.Template{
		Curve:       domain.CurveParams{BasePrice: big.NewInt(100_000_000_000), Slope: big.NewInt(100_000)},
		Fees:        domain.FeeSchedule{TradingFeeBps: 30, ListingFeeBps: 100, CreationFee: big.NewInt(0)},
		SaleAmount:  whole(800_000_000),
		MaxSupply:   whole(1_000_000_000),
		FundingGoal: whole(1),
	}
	return tpl.Open(marketAddr, common.HexToAddress("0xc0de"), "Sloth", "SLTH", big.NewInt(1), time.Unix(0, 0))
}

func TestCheckProgress(t *testing.T) {
	m := newMarket()
	p := CheckProgress(m)
	assert.False(t, p.ReachedGoal)
	assert.True(t, p.Launching)
	assert.Equal(t, int64(0), p.SoldFractionBps)

	_, err := ledger.ApplyBuy(&m, whole(2), nil)
	require.NoError(t, err)
	p = CheckProgress(m)
	assert.True(t, p.ReachedGoal)
	assert.Positive(t, p.SoldFractionBps)
	assert.Equal(t, m.ReserveBalance, p.CurrentReserve)

	exhausted := newMarket()
	exhausted.TotalSupply = new(big.Int).Set(exhausted.SaleAmount)
	assert.True(t, CheckProgress(exhausted).ReachedGoal)
	assert.Equal(t, int64(10_000), CheckProgress(exhausted).SoldFractionBps)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	gate := NewGate(venue, feeSink).WithClock(func() time.Time { return time.Unix(100, 0) })

	m := newMarket()
	require.NoError(t, l.Atomic(ctx, func(tx domain.LedgerTx) error {
		return tx.InsertMarket(ctx, m)
	}))

	// Not funded yet.
	err := l.Atomic(ctx, func(tx domain.LedgerTx) error {
		_, err := gate.Migrate(ctx, tx, &m)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrGoalNotReached)

	_, err = ledger.ApplyBuy(&m, whole(2), nil)
	require.NoError(t, err)
	require.NoError(t, l.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.CreditNative(ctx, marketAddr, m.ReserveBalance); err != nil {
			return err
		}
		return tx.UpdateMarket(ctx, m)
	}))

	var h domain.Handoff
	require.NoError(t, l.Atomic(ctx, func(tx domain.LedgerTx) error {
		var err error
		h, err = gate.Migrate(ctx, tx, &m)
		return err
	}))

	assert.False(t, m.Launching)
	require.NotNil(t, m.LaunchedAt)
	assert.Equal(t, new(big.Int).Sub(m.MaxSupply, m.TotalSupply), h.TokenAmount)
	assert.Equal(t, ledger.FeeOn(m.ReserveBalance, 100), h.ListingFee)
	assert.Equal(t, m.ReserveBalance, new(big.Int).Add(h.ReserveAmount, h.ListingFee))

	require.NoError(t, l.View(ctx, func(tx domain.LedgerTx) error {
		stored, err := tx.GetMarket(ctx, marketAddr)
		require.NoError(t, err)
		assert.False(t, stored.Launching)

		bal, _ := tx.NativeBalance(ctx, venue)
		assert.Equal(t, h.ReserveAmount, bal)
		fee, _ := tx.NativeBalance(ctx, feeSink)
		assert.Equal(t, h.ListingFee, fee)
		vault, _ := tx.NativeBalance(ctx, marketAddr)
		assert.Equal(t, 0, vault.Sign())
		tokens, _ := tx.TokenBalance(ctx, marketAddr, venue)
		assert.Equal(t, h.TokenAmount, tokens)

		_, err = tx.GetHandoff(ctx, marketAddr)
		return err
	}))

	err = l.Atomic(ctx, func(tx domain.LedgerTx) error {
		_, err := gate.Migrate(ctx, tx, &m)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyLaunched)

	_, err = ledger.ApplyBuy(&m, whole(1), nil)
	assert.ErrorIs(t, err, domain.ErrNotLaunching, "curve is frozen after launch")
}
