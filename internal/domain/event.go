package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind classifies a market event.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventBuy    EventKind = "buy"
	EventSell   EventKind = "sell"
	EventLaunch EventKind = "launch"
)

// Event is the record emitted after a successful execution. Amount fields
// that do not apply to the kind are zero.
type Event struct {
	ID             string
	Kind           EventKind
	Market         common.Address
	Signer         common.Address
	Relayer        common.Address
	Recipient      common.Address
	Nonce          uint64
	NativeAmount   *big.Int // reserve paid in or paid out
	TokenAmount    *big.Int
	Fee            *big.Int
	Refund         *big.Int
	Price          *big.Int // WAD-scaled spot price after the action
	TotalSupply    *big.Int
	ReserveBalance *big.Int
	CreatedAt      time.Time
}

// EventJSON is the wire shape of an Event for subscribers, archives and the
// HTTP API. Amounts are decimal strings in base units.
type EventJSON struct {
	ID             string    `json:"id"`
	Kind           EventKind `json:"kind"`
	Market         string    `json:"market"`
	Signer         string    `json:"signer"`
	Relayer        string    `json:"relayer"`
	Recipient      string    `json:"recipient"`
	Nonce          uint64    `json:"nonce"`
	NativeAmount   string    `json:"native_amount"`
	TokenAmount    string    `json:"token_amount"`
	Fee            string    `json:"fee"`
	Refund         string    `json:"refund"`
	Price          string    `json:"price"`
	TotalSupply    string    `json:"total_supply"`
	ReserveBalance string    `json:"reserve_balance"`
	CreatedAt      time.Time `json:"created_at"`
}

// JSON converts e to its wire shape.
func (e Event) JSON() EventJSON {
	return EventJSON{
		ID:             e.ID,
		Kind:           e.Kind,
		Market:         e.Market.Hex(),
		Signer:         e.Signer.Hex(),
		Relayer:        e.Relayer.Hex(),
		Recipient:      e.Recipient.Hex(),
		Nonce:          e.Nonce,
		NativeAmount:   IntString(e.NativeAmount),
		TokenAmount:    IntString(e.TokenAmount),
		Fee:            IntString(e.Fee),
		Refund:         IntString(e.Refund),
		Price:          IntString(e.Price),
		TotalSupply:    IntString(e.TotalSupply),
		ReserveBalance: IntString(e.ReserveBalance),
		CreatedAt:      e.CreatedAt,
	}
}

// IntString renders x in base 10, treating nil as zero.
func IntString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}
