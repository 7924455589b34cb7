package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/nonce"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

var (
	marketAddr = common.HexToAddress("0x3a4b")
	holder     = common.HexToAddress("0xb0b")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func whole(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), domain.WAD) }

func seedMarket(t *testing.T, l *memory.Ledger) domain.Market {
	t.Helper()
	tpl := ledger.Template{
		Curve:       domain.CurveParams{BasePrice: big.NewInt(100_000_000_000), Slope: big.NewInt(100_000)},
		Fees:        domain.FeeSchedule{TradingFeeBps: 30, ListingFeeBps: 100, CreationFee: big.NewInt(0)},
		SaleAmount:  whole(800_000_000),
		MaxSupply:   whole(1_000_000_000),
		FundingGoal: whole(10),
	}
	m := tpl.Open(marketAddr, common.HexToAddress("0xc0de"), "Sloth", "SLTH", big.NewInt(1), time.Unix(1_700_000_000, 0))
	require.NoError(t, l.Atomic(context.Background(), func(tx domain.LedgerTx) error {
		return tx.InsertMarket(context.Background(), m)
	}))
	return m
}

// mockCache is a testify mock of domain.MarketCache.
type mockCache struct{ mock.Mock }

func (c *mockCache) Set(ctx context.Context, m domain.Market) error {
	return c.Called(ctx, m).Error(0)
}

func (c *mockCache) Get(ctx context.Context, addr common.Address) (domain.Market, error) {
	args := c.Called(ctx, addr)
	return args.Get(0).(domain.Market), args.Error(1)
}

func (c *mockCache) Invalidate(ctx context.Context, addr common.Address) error {
	return c.Called(ctx, addr).Error(0)
}

type countingMetrics struct{ hits, misses int }

func (m *countingMetrics) RecordCacheHit(context.Context, string)  { m.hits++ }
func (m *countingMetrics) RecordCacheMiss(context.Context, string) { m.misses++ }

func TestMarketService_CacheFallback(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	m := seedMarket(t, l)

	cache := &mockCache{}
	cache.On("Get", mock.Anything, marketAddr).Return(domain.Market{}, domain.ErrNotFound).Once()
	cache.On("Set", mock.Anything, mock.AnythingOfType("domain.Market")).Return(nil).Once()
	cache.On("Get", mock.Anything, marketAddr).Return(m, nil).Once()

	metrics := &countingMetrics{}
	svc := NewMarketService(l, nonce.NewRegistry(l), cache, nil, discard()).WithMetrics(metrics)

	got, err := svc.GetMarket(ctx, marketAddr)
	require.NoError(t, err)
	assert.Equal(t, "SLTH", got.Symbol)

	_, err = svc.GetMarket(ctx, marketAddr)
	require.NoError(t, err)
	cache.AssertExpectations(t)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestMarketService_Reads(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	seedMarket(t, l)
	svc := NewMarketService(l, nonce.NewRegistry(l), nil, nil, discard())

	_, err := svc.GetMarket(ctx, common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	list, err := svc.ListMarkets(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	pv, err := svc.Price(ctx, marketAddr, 5)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(100_000_000_000), domain.WAD), pv.Price)
	assert.Empty(t, pv.History)

	q, err := svc.QuoteBuy(ctx, marketAddr, whole(1))
	require.NoError(t, err)
	assert.Positive(t, q.TokensOut.Sign())

	_, err = svc.QuoteSell(ctx, marketAddr, whole(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance, "nothing issued yet")

	_, err = svc.QuoteBuy(ctx, marketAddr, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	p, h, err := svc.Progress(ctx, marketAddr)
	require.NoError(t, err)
	assert.True(t, p.Launching)
	assert.Nil(t, h)

	events, err := svc.Events(ctx, marketAddr, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, events)

	n, err := svc.Nonce(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestCustodyService(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	m := seedMarket(t, l)
	custody := NewCustodyService(l, nil, discard())
	svc := NewMarketService(l, nonce.NewRegistry(l), nil, nil, discard())

	_, err := custody.Deposit(ctx, holder, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	assert.ErrorIs(t, custody.Approve(ctx, holder, big.NewInt(-1)), domain.ErrInvalidIntent)

	bal, err := custody.Deposit(ctx, holder, whole(3))
	require.NoError(t, err)
	assert.Equal(t, whole(3), bal)
	bal, err = custody.Deposit(ctx, holder, whole(2))
	require.NoError(t, err)
	assert.Equal(t, whole(5), bal)
	require.NoError(t, custody.Approve(ctx, holder, whole(4)))

	b, err := svc.Balances(ctx, holder, &m.Address)
	require.NoError(t, err)
	assert.Equal(t, whole(5), b.Native)
	assert.Equal(t, whole(4), b.Allowance)
	assert.Equal(t, 0, b.Tokens.Sign())

	missing := common.HexToAddress("0xdead")
	_, err = svc.Balances(ctx, holder, &missing)
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

type recordedPrice struct {
	market common.Address
	price  *big.Int
}

type fakePrices struct{ got []recordedPrice }

func (f *fakePrices) Record(_ context.Context, market common.Address, price *big.Int, _ time.Time) error {
	f.got = append(f.got, recordedPrice{market, price})
	return nil
}

func (f *fakePrices) Recent(context.Context, common.Address, int) ([]domain.PricePoint, error) {
	return nil, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type launchCounter struct{ n int }

func (c *launchCounter) RecordLaunch(context.Context) { c.n++ }

func TestEventPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	perMarket, err := bus.Subscribe(ctx, domain.ChannelMarketPrefix+"*")
	require.NoError(t, err)

	cache := &mockCache{}
	cache.On("Set", mock.Anything, mock.AnythingOfType("domain.Market")).Return(errors.New("redis down"))
	cache.On("Invalidate", mock.Anything, marketAddr).Return(nil)
	prices := &fakePrices{}
	audit := &fakeAudit{}
	launches := &launchCounter{}

	p := NewEventPublisher(PublisherDeps{
		Bus: bus, Cache: cache, Prices: prices, Audit: audit, Metrics: launches,
	}, discard())

	m := domain.Market{Address: marketAddr, Name: "Sloth", Symbol: "SLTH"}
	at := time.Unix(1_700_000_100, 0).UTC()
	p.Publish(ctx, m, []domain.Event{
		{ID: "a", Kind: domain.EventBuy, Market: marketAddr, Price: big.NewInt(7), CreatedAt: at},
		{ID: "b", Kind: domain.EventLaunch, Market: marketAddr, Price: big.NewInt(9), CreatedAt: at},
	})

	for _, want := range []string{"a", "b"} {
		select {
		case raw := <-perMarket:
			var msg BusMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, "event", msg.Type)
			require.NotNil(t, msg.Event)
			assert.Equal(t, want, msg.Event.ID)
		case <-time.After(time.Second):
			t.Fatalf("missing bus message %s", want)
		}
	}

	stream, err := bus.StreamRead(ctx, domain.StreamEvents, "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 2)
	require.Len(t, prices.got, 2)
	assert.Equal(t, big.NewInt(9), prices.got[1].price)
	assert.Equal(t, 1, launches.n)
	assert.Equal(t, []string{"market.launched"}, audit.events)

	p.MarketHalted(ctx, marketAddr, domain.ErrInvariantBroken)
	select {
	case raw := <-perMarket:
		var msg BusMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "halted", msg.Type)
		assert.Equal(t, domain.ErrInvariantBroken.Error(), msg.Reason)
	case <-time.After(time.Second):
		t.Fatal("missing halt message")
	}
	assert.Equal(t, []string{"market.launched", "market.halted"}, audit.events)
	cache.AssertExpectations(t)
}

type fakeArchiver struct {
	since, until time.Time
	n            int64
	calls        int
	windows      []time.Time // until of every call
	failAt       time.Time
}

func (f *fakeArchiver) ArchiveEvents(_ context.Context, since, until time.Time) (int64, error) {
	f.since, f.until = since, until
	f.calls++
	f.windows = append(f.windows, until)
	if !f.failAt.IsZero() && until.Equal(f.failAt) {
		return 0, errors.New("s3 unavailable")
	}
	return f.n, nil
}

type fakeLocks struct{ held bool }

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return func() { f.held = false }, nil
}

type archivedCounter struct{ total int64 }

func (c *archivedCounter) RecordArchived(_ context.Context, n int64) { c.total += n }

func TestArchiveJob(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchiver{n: 4}
	locks := &fakeLocks{}
	counter := &archivedCounter{}
	now := time.Date(2026, 10, 19, 13, 45, 0, 0, time.UTC)

	job := NewArchiveJob(arch, locks, time.Hour, 24*time.Hour, discard()).
		WithBackfill(0).
		WithMetrics(counter).
		WithClock(func() time.Time { return now })

	since, until := job.Window()
	assert.Equal(t, time.Date(2026, 10, 18, 13, 0, 0, 0, time.UTC), until)
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), since)

	n, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, until, arch.until)
	assert.Equal(t, int64(4), counter.total)
	assert.False(t, locks.held, "lock released after the run")

	locks.held = true
	n, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, arch.calls, "skipped while another node holds the lock")
}

func TestArchiveJob_CatchesUpMissedWindows(t *testing.T) {
	ctx := context.Background()
	arch := &fakeArchiver{n: 1}
	now := time.Date(2026, 10, 19, 13, 45, 0, 0, time.UTC)
	job := NewArchiveJob(arch, nil, time.Hour, 24*time.Hour, discard()).
		WithBackfill(2).
		WithClock(func() time.Time { return now })

	base := time.Date(2026, 10, 18, 13, 0, 0, 0, time.UTC)
	n, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "two backfilled windows plus the current one")
	assert.Equal(t, []time.Time{base.Add(-2 * time.Hour), base.Add(-time.Hour), base}, arch.windows)

	// Same tick: nothing new has aged out.
	n, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, arch.windows, 3)

	// The job was down for four intervals; the third missed window fails.
	arch.windows = nil
	now = now.Add(4 * time.Hour)
	arch.failAt = base.Add(3 * time.Hour)
	n, err = job.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []time.Time{base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(3 * time.Hour)}, arch.windows)

	// The next run resumes at the failed window and reaches the current one.
	arch.windows = nil
	arch.failAt = time.Time{}
	n, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []time.Time{base.Add(3 * time.Hour), base.Add(4 * time.Hour)}, arch.windows)
	for i := 1; i < len(arch.windows); i++ {
		assert.Equal(t, time.Hour, arch.windows[i].Sub(arch.windows[i-1]))
	}
}
