package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, addr common.Address) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Price(ctx context.Context, addr common.Address, historyLimit int) (service.PriceView, error)
	QuoteBuy(ctx context.Context, addr common.Address, reserveIn *big.Int) (ledger.BuyResult, error)
	QuoteSell(ctx context.Context, addr common.Address, tokensIn *big.Int) (ledger.SellResult, error)
	Progress(ctx context.Context, addr common.Address) (domain.Progress, *domain.Handoff, error)
	Events(ctx context.Context, addr common.Address, opts domain.ListOpts) ([]domain.Event, error)
	Balances(ctx context.Context, owner common.Address, market *common.Address) (service.Balances, error)
	Nonce(ctx context.Context, signer common.Address) (uint64, error)
}

// MarketHandler serves the public read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "markets"),
	}
}

type listMarketsResponse struct {
	Markets []domain.MarketJSON `json:"markets"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// ListMarkets returns markets newest first.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	out := make([]domain.MarketJSON, len(markets))
	for i, m := range markets {
		out[i] = m.JSON()
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: out, Limit: opts.Limit, Offset: opts.Offset})
}

// GetMarket returns one market.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	m, err := h.markets.GetMarket(r.Context(), addr)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m.JSON())
}

type pricePointJSON struct {
	Price string    `json:"price"`
	At    time.Time `json:"at"`
}

type priceResponse struct {
	Market       string           `json:"market"`
	Price        string           `json:"price"`
	PriceDisplay string           `json:"price_display"`
	TotalSupply  string           `json:"total_supply"`
	History      []pricePointJSON `json:"history"`
}

// GetPrice returns the spot price in reserve base units per whole token,
// scaled by 1e18. price_display is whole reserve units per whole token.
// GET /api/markets/{address}/price?history=20
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("history")); err == nil && v >= 0 && v <= 500 {
		limit = v
	}
	pv, err := h.markets.Price(r.Context(), addr, limit)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	resp := priceResponse{
		Market:       addr.Hex(),
		Price:        pv.Price.String(),
		PriceDisplay: domain.FormatPrice(pv.Price, 18),
		TotalSupply:  pv.Supply.String(),
		History:      make([]pricePointJSON, len(pv.History)),
	}
	for i, p := range pv.History {
		resp.History[i] = pricePointJSON{Price: p.Price.String(), At: p.At}
	}
	writeJSON(w, http.StatusOK, resp)
}

type buyQuoteResponse struct {
	ReserveIn        string `json:"reserve_in"`
	TokensOut        string `json:"tokens_out"`
	TokensOutDisplay string `json:"tokens_out_display"`
	Cost             string `json:"cost"`
	Fee              string `json:"fee"`
	Refund           string `json:"refund"`
	PriceAfter       string `json:"price_after"`
}

// QuoteBuy prices a buy without executing it.
// GET /api/markets/{address}/quote/buy?reserve_in=
func (h *MarketHandler) QuoteBuy(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	reserveIn, ok := queryAmount(w, r, "reserve_in")
	if !ok {
		return
	}
	q, err := h.markets.QuoteBuy(r.Context(), addr, reserveIn)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, buyQuoteResponse{
		ReserveIn:        q.ReserveIn.String(),
		TokensOut:        q.TokensOut.String(),
		TokensOutDisplay: domain.FormatUnits(q.TokensOut, 4),
		Cost:             q.Cost.String(),
		Fee:              q.Fee.String(),
		Refund:           q.Refund.String(),
		PriceAfter:       q.Price.String(),
	})
}

type sellQuoteResponse struct {
	TokensIn      string `json:"tokens_in"`
	Gross         string `json:"gross"`
	Fee           string `json:"fee"`
	Payout        string `json:"payout"`
	PayoutDisplay string `json:"payout_display"`
	PriceAfter    string `json:"price_after"`
}

// QuoteSell prices a sell without executing it.
// GET /api/markets/{address}/quote/sell?tokens_in=
func (h *MarketHandler) QuoteSell(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	tokensIn, ok := queryAmount(w, r, "tokens_in")
	if !ok {
		return
	}
	q, err := h.markets.QuoteSell(r.Context(), addr, tokensIn)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sellQuoteResponse{
		TokensIn:      q.TokensIn.String(),
		Gross:         q.Gross.String(),
		Fee:           q.Fee.String(),
		Payout:        q.Payout.String(),
		PayoutDisplay: domain.FormatUnits(q.Payout, 6),
		PriceAfter:    q.Price.String(),
	})
}

type progressResponse struct {
	Market          string              `json:"market"`
	SoldFractionBps int64               `json:"sold_fraction_bps"`
	CurrentReserve  string              `json:"current_reserve"`
	Goal            string              `json:"goal"`
	ReachedGoal     bool                `json:"reached_goal"`
	Launching       bool                `json:"launching"`
	Handoff         *domain.HandoffJSON `json:"handoff,omitempty"`
}

// GetProgress reports launch progress.
// GET /api/markets/{address}/progress
func (h *MarketHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	p, handoff, err := h.markets.Progress(r.Context(), addr)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	resp := progressResponse{
		Market:          addr.Hex(),
		SoldFractionBps: p.SoldFractionBps,
		CurrentReserve:  p.CurrentReserve.String(),
		Goal:            p.Goal.String(),
		ReachedGoal:     p.ReachedGoal,
		Launching:       p.Launching,
	}
	if handoff != nil {
		hj := handoff.JSON()
		resp.Handoff = &hj
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListEvents returns a market's events newest first.
// GET /api/markets/{address}/events?limit=50&offset=0
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	events, err := h.markets.Events(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	out := make([]domain.EventJSON, len(events))
	for i, ev := range events {
		out[i] = ev.JSON()
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type balancesResponse struct {
	Owner         string `json:"owner"`
	Native        string `json:"native"`
	NativeDisplay string `json:"native_display"`
	Allowance     string `json:"allowance"`
	Market        string `json:"market,omitempty"`
	Tokens        string `json:"tokens,omitempty"`
	TokensDisplay string `json:"tokens_display,omitempty"`
}

// GetBalances returns the reserve balance and allowance of an account and,
// with ?market=, its token balance there.
// GET /api/balances/{address}?market=
func (h *MarketHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var market *common.Address
	if v := r.URL.Query().Get("market"); v != "" {
		if !common.IsHexAddress(v) {
			writeError(w, http.StatusBadRequest, "invalid market")
			return
		}
		m := common.HexToAddress(v)
		market = &m
	}
	b, err := h.markets.Balances(r.Context(), owner, market)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	resp := balancesResponse{
		Owner:         owner.Hex(),
		Native:        b.Native.String(),
		NativeDisplay: domain.FormatUnits(b.Native, 6),
		Allowance:     b.Allowance.String(),
	}
	if market != nil {
		resp.Market = market.Hex()
		resp.Tokens = b.Tokens.String()
		resp.TokensDisplay = domain.FormatUnits(b.Tokens, 4)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetNonce returns the next nonce a signer must use.
// GET /api/nonces/{address}
func (h *MarketHandler) GetNonce(w http.ResponseWriter, r *http.Request) {
	signer, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	n, err := h.markets.Nonce(r.Context(), signer)
	if err != nil {
		writeFailure(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signer": signer.Hex(), "nonce": n})
}
