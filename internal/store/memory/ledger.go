// Package memory is an in-process implementation of domain.Ledger. Every
// Atomic call works on a copy of the state and swaps it in on success, so a
// failed execution leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

var errReadOnly = errors.New("memory: write in read-only view")

type tokenKey struct {
	market common.Address
	holder common.Address
}

type state struct {
	markets    map[common.Address]domain.Market
	nonces     map[common.Address]uint64
	native     map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	tokens     map[tokenKey]*big.Int
	handoffs   map[common.Address]domain.Handoff
	events     []domain.Event
}

func newState() *state {
	return &state{
		markets:    make(map[common.Address]domain.Market),
		nonces:     make(map[common.Address]uint64),
		native:     make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]*big.Int),
		tokens:     make(map[tokenKey]*big.Int),
		handoffs:   make(map[common.Address]domain.Handoff),
	}
}

// clone copies the maps. Values are never mutated in place, so the copies
// can share them.
func (s *state) clone() *state {
	c := &state{
		markets:    make(map[common.Address]domain.Market, len(s.markets)),
		nonces:     make(map[common.Address]uint64, len(s.nonces)),
		native:     make(map[common.Address]*big.Int, len(s.native)),
		allowances: make(map[common.Address]*big.Int, len(s.allowances)),
		tokens:     make(map[tokenKey]*big.Int, len(s.tokens)),
		handoffs:   make(map[common.Address]domain.Handoff, len(s.handoffs)),
		// Full slice expression so appends in the copy never write into
		// the committed backing array.
		events: s.events[:len(s.events):len(s.events)],
	}
	for k, v := range s.markets {
		c.markets[k] = v
	}
	for k, v := range s.nonces {
		c.nonces[k] = v
	}
	for k, v := range s.native {
		c.native[k] = v
	}
	for k, v := range s.allowances {
		c.allowances[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.handoffs {
		c.handoffs[k] = v
	}
	return c
}

// Ledger implements domain.Ledger in memory.
type Ledger struct {
	mu sync.RWMutex
	st *state
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{st: newState()}
}

// Atomic runs fn against a private copy of the state and commits the copy
// only when fn succeeds. Atomic calls are fully serialized.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	work := l.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	l.st = work
	return nil
}

// View runs fn against the committed state. Writes through tx fail.
func (l *Ledger) View(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&tx{st: l.st, readOnly: true})
}

// ListEventsBetween returns committed events with since <= CreatedAt < until.
func (l *Ledger) ListEventsBetween(_ context.Context, since, until time.Time) ([]domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Event
	for _, e := range l.st.events {
		if !e.CreatedAt.Before(since) && e.CreatedAt.Before(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

type tx struct {
	st       *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// --- markets ---

func (t *tx) GetMarket(_ context.Context, addr common.Address) (domain.Market, error) {
	m, ok := t.st.markets[addr]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %s: %w", addr.Hex(), domain.ErrMarketNotFound)
	}
	return m.Clone(), nil
}

func (t *tx) ListMarkets(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	all := make([]domain.Market, 0, len(t.st.markets))
	for _, m := range t.st.markets {
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !m.CreatedAt.Before(*opts.Until) {
			continue
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Address.Hex() < all[j].Address.Hex()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := page(all, opts)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out, nil
}

func (t *tx) InsertMarket(_ context.Context, m domain.Market) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.markets[m.Address]; ok {
		return fmt.Errorf("memory: market %s: %w", m.Address.Hex(), domain.ErrMarketExists)
	}
	t.st.markets[m.Address] = m.Clone()
	return nil
}

func (t *tx) UpdateMarket(_ context.Context, m domain.Market) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.markets[m.Address]; !ok {
		return fmt.Errorf("memory: market %s: %w", m.Address.Hex(), domain.ErrMarketNotFound)
	}
	t.st.markets[m.Address] = m.Clone()
	return nil
}

// --- nonces ---

func (t *tx) CurrentNonce(_ context.Context, signer common.Address) (uint64, error) {
	return t.st.nonces[signer], nil
}

func (t *tx) ConsumeNonce(_ context.Context, signer common.Address, expected uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur := t.st.nonces[signer]
	if cur != expected {
		return fmt.Errorf("memory: nonce for %s is %d, got %d: %w", signer.Hex(), cur, expected, domain.ErrInvalidNonce)
	}
	t.st.nonces[signer] = cur + 1
	return nil
}

// --- custody ---

func (t *tx) NativeBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	return valueOrZero(t.st.native[owner]), nil
}

func (t *tx) Allowance(_ context.Context, owner common.Address) (*big.Int, error) {
	return valueOrZero(t.st.allowances[owner]), nil
}

func (t *tx) CreditNative(_ context.Context, owner common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("memory: negative credit %s", amount)
	}
	t.st.native[owner] = new(big.Int).Add(valueOrZero(t.st.native[owner]), amount)
	return nil
}

func (t *tx) SetAllowance(_ context.Context, owner common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("memory: negative allowance %s", amount)
	}
	t.st.allowances[owner] = new(big.Int).Set(amount)
	return nil
}

func (t *tx) PullNative(ctx context.Context, owner, to common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	allowance := valueOrZero(t.st.allowances[owner])
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("memory: allowance of %s is %s, need %s: %w",
			owner.Hex(), allowance, amount, domain.ErrInsufficientAllowance)
	}
	if err := t.TransferNative(ctx, owner, to, amount); err != nil {
		return err
	}
	t.st.allowances[owner] = new(big.Int).Sub(allowance, amount)
	return nil
}

func (t *tx) TransferNative(_ context.Context, from, to common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("memory: negative transfer %s", amount)
	}
	bal := valueOrZero(t.st.native[from])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("memory: balance of %s is %s, need %s: %w",
			from.Hex(), bal, amount, domain.ErrInsufficientBalance)
	}
	t.st.native[from] = new(big.Int).Sub(bal, amount)
	t.st.native[to] = new(big.Int).Add(valueOrZero(t.st.native[to]), amount)
	return nil
}

func (t *tx) TokenBalance(_ context.Context, market, holder common.Address) (*big.Int, error) {
	return valueOrZero(t.st.tokens[tokenKey{market, holder}]), nil
}

func (t *tx) MintTokens(_ context.Context, market, to common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := tokenKey{market, to}
	t.st.tokens[k] = new(big.Int).Add(valueOrZero(t.st.tokens[k]), amount)
	return nil
}

func (t *tx) BurnTokens(_ context.Context, market, from common.Address, amount *big.Int) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := tokenKey{market, from}
	bal := valueOrZero(t.st.tokens[k])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("memory: token balance of %s is %s, need %s: %w",
			from.Hex(), bal, amount, domain.ErrInsufficientBalance)
	}
	t.st.tokens[k] = new(big.Int).Sub(bal, amount)
	return nil
}

// --- events ---

func (t *tx) AppendEvent(_ context.Context, e domain.Event) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.st.events = append(t.st.events, e)
	return nil
}

func (t *tx) ListEvents(_ context.Context, market common.Address, opts domain.ListOpts) ([]domain.Event, error) {
	var matched []domain.Event
	// Newest first.
	for i := len(t.st.events) - 1; i >= 0; i-- {
		e := t.st.events[i]
		if e.Market != market {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		matched = append(matched, e)
	}
	return page(matched, opts), nil
}

func (t *tx) RecordHandoff(_ context.Context, h domain.Handoff) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.handoffs[h.Market]; ok {
		return fmt.Errorf("memory: handoff for %s: %w", h.Market.Hex(), domain.ErrAlreadyLaunched)
	}
	t.st.handoffs[h.Market] = h
	return nil
}

func (t *tx) GetHandoff(_ context.Context, market common.Address) (domain.Handoff, error) {
	h, ok := t.st.handoffs[market]
	if !ok {
		return domain.Handoff{}, fmt.Errorf("memory: handoff for %s: %w", market.Hex(), domain.ErrNotFound)
	}
	return h, nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func valueOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

var (
	_ domain.Ledger            = (*Ledger)(nil)
	_ domain.LedgerTx          = (*tx)(nil)
	_ domain.EventArchiveStore = (*Ledger)(nil)
)
