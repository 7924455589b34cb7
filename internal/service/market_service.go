package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/curve"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/launch"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/nonce"
)

// CacheMetrics counts market cache lookups.
type CacheMetrics interface {
	RecordCacheHit(ctx context.Context, key string)
	RecordCacheMiss(ctx context.Context, key string)
}

// PriceView is the current spot price of a market plus its recent history.
type PriceView struct {
	Market  common.Address
	Price   *big.Int
	Supply  *big.Int
	History []domain.PricePoint
}

// Balances is what a holder owns on the engine.
type Balances struct {
	Owner     common.Address
	Native    *big.Int
	Allowance *big.Int
	Market    *common.Address
	Tokens    *big.Int
}

// MarketService serves the read side: markets, quotes, progress, events,
// balances and nonces.
type MarketService struct {
	ledger  domain.Ledger
	nonces  *nonce.Registry
	cache   domain.MarketCache
	prices  domain.PriceHistory
	metrics CacheMetrics
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache and prices may be nil.
func NewMarketService(
	l domain.Ledger,
	nonces *nonce.Registry,
	cache domain.MarketCache,
	prices domain.PriceHistory,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger: l,
		nonces: nonces,
		cache:  cache,
		prices: prices,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// WithMetrics attaches cache hit and miss counters.
func (s *MarketService) WithMetrics(m CacheMetrics) *MarketService {
	s.metrics = m
	return s
}

// GetMarket returns a market, checking the cache first and falling back to
// the ledger on a miss.
func (s *MarketService) GetMarket(ctx context.Context, addr common.Address) (domain.Market, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, addr)
		if err == nil {
			s.hit(ctx, true)
			return m, nil
		}
		s.hit(ctx, false)
	}

	var m domain.Market
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		m, err = tx.GetMarket(ctx, addr)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", addr.Hex(), err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market", addr.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

func (s *MarketService) hit(ctx context.Context, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(ctx, "market")
	} else {
		s.metrics.RecordCacheMiss(ctx, "market")
	}
}

// ListMarkets returns markets newest first straight from the ledger.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var out []domain.Market
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		out, err = tx.ListMarkets(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return out, nil
}

// Price returns the spot price and up to historyLimit recent prices.
func (s *MarketService) Price(ctx context.Context, addr common.Address, historyLimit int) (PriceView, error) {
	m, err := s.GetMarket(ctx, addr)
	if err != nil {
		return PriceView{}, err
	}
	v := PriceView{
		Market: addr,
		Price:  curve.Price(m.Curve, m.TotalSupply),
		Supply: new(big.Int).Set(m.TotalSupply),
	}
	if s.prices != nil && historyLimit > 0 {
		v.History, err = s.prices.Recent(ctx, addr, historyLimit)
		if err != nil {
			s.logger.WarnContext(ctx, "price history read failed",
				slog.String("market", addr.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return v, nil
}

// QuoteBuy prices a buy of reserveIn without executing it.
func (s *MarketService) QuoteBuy(ctx context.Context, addr common.Address, reserveIn *big.Int) (ledger.BuyResult, error) {
	m, err := s.GetMarket(ctx, addr)
	if err != nil {
		return ledger.BuyResult{}, err
	}
	res, err := ledger.QuoteBuy(m, reserveIn)
	if err != nil {
		return ledger.BuyResult{}, fmt.Errorf("market_service: quote buy: %w", err)
	}
	return res, nil
}

// QuoteSell prices a sell of tokensIn without executing it.
func (s *MarketService) QuoteSell(ctx context.Context, addr common.Address, tokensIn *big.Int) (ledger.SellResult, error) {
	m, err := s.GetMarket(ctx, addr)
	if err != nil {
		return ledger.SellResult{}, err
	}
	res, err := ledger.QuoteSell(m, tokensIn)
	if err != nil {
		return ledger.SellResult{}, fmt.Errorf("market_service: quote sell: %w", err)
	}
	return res, nil
}

// Progress reports launch progress. A launched market also returns its
// handoff record.
func (s *MarketService) Progress(ctx context.Context, addr common.Address) (domain.Progress, *domain.Handoff, error) {
	m, err := s.GetMarket(ctx, addr)
	if err != nil {
		return domain.Progress{}, nil, err
	}
	p := launch.CheckProgress(m)
	if m.Launching {
		return p, nil, nil
	}

	var h domain.Handoff
	err = s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		h, err = tx.GetHandoff(ctx, addr)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return p, nil, nil
	}
	if err != nil {
		return domain.Progress{}, nil, fmt.Errorf("market_service: handoff %s: %w", addr.Hex(), err)
	}
	return p, &h, nil
}

// Events lists a market's events newest first.
func (s *MarketService) Events(ctx context.Context, addr common.Address, opts domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		if _, err := tx.GetMarket(ctx, addr); err != nil {
			return err
		}
		var err error
		out, err = tx.ListEvents(ctx, addr, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: events %s: %w", addr.Hex(), err)
	}
	return out, nil
}

// Balances returns the reserve balance and allowance of owner and, when
// market is set, its token balance there.
func (s *MarketService) Balances(ctx context.Context, owner common.Address, market *common.Address) (Balances, error) {
	b := Balances{Owner: owner, Market: market}
	err := s.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		if b.Native, err = tx.NativeBalance(ctx, owner); err != nil {
			return err
		}
		if b.Allowance, err = tx.Allowance(ctx, owner); err != nil {
			return err
		}
		if market == nil {
			return nil
		}
		if _, err = tx.GetMarket(ctx, *market); err != nil {
			return err
		}
		b.Tokens, err = tx.TokenBalance(ctx, *market, owner)
		return err
	})
	if err != nil {
		return Balances{}, fmt.Errorf("market_service: balances %s: %w", owner.Hex(), err)
	}
	return b, nil
}

// Nonce returns the next nonce signer must use.
func (s *MarketService) Nonce(ctx context.Context, signer common.Address) (uint64, error) {
	return s.nonces.Current(ctx, signer)
}
