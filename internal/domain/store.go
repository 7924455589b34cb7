package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts controls pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists curve state, one record per market.
type MarketStore interface {
	GetMarket(ctx context.Context, addr common.Address) (Market, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]Market, error)
	InsertMarket(ctx context.Context, m Market) error
	UpdateMarket(ctx context.Context, m Market) error
}

// NonceStore is the global per-signer nonce table.
type NonceStore interface {
	CurrentNonce(ctx context.Context, signer common.Address) (uint64, error)
	// ConsumeNonce increments the signer's counter if and only if it
	// currently equals expected. It returns ErrInvalidNonce otherwise.
	ConsumeNonce(ctx context.Context, signer common.Address, expected uint64) error
}

// Custody tracks reserve-asset balances, allowances granted to the engine,
// and per-market token balances.
type Custody interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner common.Address) (*big.Int, error)
	CreditNative(ctx context.Context, owner common.Address, amount *big.Int) error
	SetAllowance(ctx context.Context, owner common.Address, amount *big.Int) error
	// PullNative moves amount from owner to `to`, spending owner's allowance.
	PullNative(ctx context.Context, owner, to common.Address, amount *big.Int) error
	TransferNative(ctx context.Context, from, to common.Address, amount *big.Int) error

	TokenBalance(ctx context.Context, market, holder common.Address) (*big.Int, error)
	MintTokens(ctx context.Context, market, to common.Address, amount *big.Int) error
	BurnTokens(ctx context.Context, market, from common.Address, amount *big.Int) error
}

// EventLog is the append-only record of executed actions and launches.
type EventLog interface {
	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, market common.Address, opts ListOpts) ([]Event, error)
	RecordHandoff(ctx context.Context, h Handoff) error
	GetHandoff(ctx context.Context, market common.Address) (Handoff, error)
}

// LedgerTx is the view of persisted state available inside one execution.
type LedgerTx interface {
	MarketStore
	NonceStore
	Custody
	EventLog
}

// Ledger runs functions against persisted state. Atomic commits every write
// made through tx when fn returns nil and discards all of them otherwise.
// Executions against the same market or signer are serialized.
type Ledger interface {
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error
	View(ctx context.Context, fn func(tx LedgerTx) error) error
}

// EventArchiveStore lists events by creation time for cold storage export.
type EventArchiveStore interface {
	ListEventsBetween(ctx context.Context, since, until time.Time) ([]Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
