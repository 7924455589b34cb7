package relay

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// JSON bodies accepted by the relay API. Amounts are base-unit integers
// written as decimal strings; signatures are 0x-prefixed hex.
//
// The signed schema declares nonce and deadline as uint256, but both travel
// and are stored as uint64. A nonce at or above 2^64 fails to decode and is
// never accepted; a signer would need 2^64 actions to reach the bound.

// CreateIntentJSON is the wire form of domain.CreateIntent.
type CreateIntentJSON struct {
	Creator        string `json:"creator"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	TokenID        string `json:"token_id"`
	InitialDeposit string `json:"initial_deposit"`
	Nonce          uint64 `json:"nonce"`
	Deadline       uint64 `json:"deadline"`
	Relayer        string `json:"relayer"`
}

// BuyIntentJSON is the wire form of domain.BuyIntent.
type BuyIntentJSON struct {
	Buyer        string `json:"buyer"`
	Recipient    string `json:"recipient"`
	NativeAmount string `json:"native_amount"`
	Nonce        uint64 `json:"nonce"`
	Deadline     uint64 `json:"deadline"`
	Relayer      string `json:"relayer"`
}

// SellIntentJSON is the wire form of domain.SellIntent.
type SellIntentJSON struct {
	Seller      string `json:"seller"`
	Recipient   string `json:"recipient"`
	TokenAmount string `json:"token_amount"`
	Nonce       uint64 `json:"nonce"`
	Deadline    uint64 `json:"deadline"`
	Relayer     string `json:"relayer"`
}

// CreateBody is the request body of POST /api/relay/create.
type CreateBody struct {
	Intent    CreateIntentJSON `json:"intent"`
	Signature string           `json:"signature"`
}

// BuyBody is the request body of POST /api/relay/buy. MinTokensOut is the
// optional slippage bound.
type BuyBody struct {
	Market       string        `json:"market"`
	Intent       BuyIntentJSON `json:"intent"`
	Signature    string        `json:"signature"`
	MinTokensOut string        `json:"min_tokens_out,omitempty"`
}

// SellBody is the request body of POST /api/relay/sell. MinReserveOut is
// the optional slippage bound on the net payout.
type SellBody struct {
	Market        string         `json:"market"`
	Intent        SellIntentJSON `json:"intent"`
	Signature     string         `json:"signature"`
	MinReserveOut string         `json:"min_reserve_out,omitempty"`
}

// NewCreateBody renders a signed Create intent.
func NewCreateBody(in domain.CreateIntent, sig []byte) CreateBody {
	return CreateBody{
		Intent: CreateIntentJSON{
			Creator:        in.Creator.Hex(),
			Name:           in.Name,
			Symbol:         in.Symbol,
			TokenID:        domain.IntString(in.TokenID),
			InitialDeposit: domain.IntString(in.InitialDeposit),
			Nonce:          in.Nonce,
			Deadline:       in.Deadline,
			Relayer:        in.Relayer.Hex(),
		},
		Signature: hexutil.Encode(sig),
	}
}

// NewBuyBody renders a signed Buy intent. minTokensOut may be nil.
func NewBuyBody(market common.Address, in domain.BuyIntent, sig []byte, minTokensOut *big.Int) BuyBody {
	b := BuyBody{
		Market: market.Hex(),
		Intent: BuyIntentJSON{
			Buyer:        in.Buyer.Hex(),
			Recipient:    in.Recipient.Hex(),
			NativeAmount: domain.IntString(in.NativeAmount),
			Nonce:        in.Nonce,
			Deadline:     in.Deadline,
			Relayer:      in.Relayer.Hex(),
		},
		Signature: hexutil.Encode(sig),
	}
	if minTokensOut != nil {
		b.MinTokensOut = minTokensOut.String()
	}
	return b
}

// NewSellBody renders a signed Sell intent. minReserveOut may be nil.
func NewSellBody(market common.Address, in domain.SellIntent, sig []byte, minReserveOut *big.Int) SellBody {
	b := SellBody{
		Market: market.Hex(),
		Intent: SellIntentJSON{
			Seller:      in.Seller.Hex(),
			Recipient:   in.Recipient.Hex(),
			TokenAmount: domain.IntString(in.TokenAmount),
			Nonce:       in.Nonce,
			Deadline:    in.Deadline,
			Relayer:     in.Relayer.Hex(),
		},
		Signature: hexutil.Encode(sig),
	}
	if minReserveOut != nil {
		b.MinReserveOut = minReserveOut.String()
	}
	return b
}

// Request converts the body into an executor request submitted by relayer.
func (b CreateBody) Request(relayer common.Address) (CreateRequest, error) {
	p := &parser{}
	in := domain.CreateIntent{
		Creator:        p.address("creator", b.Intent.Creator),
		Name:           b.Intent.Name,
		Symbol:         b.Intent.Symbol,
		TokenID:        p.amount("token_id", b.Intent.TokenID, false),
		InitialDeposit: p.amount("initial_deposit", b.Intent.InitialDeposit, true),
		Nonce:          b.Intent.Nonce,
		Deadline:       b.Intent.Deadline,
		Relayer:        p.address("relayer", b.Intent.Relayer),
	}
	sig := p.signature(b.Signature)
	if p.err != nil {
		return CreateRequest{}, p.err
	}
	return CreateRequest{Intent: in, Signature: sig, Relayer: relayer}, nil
}

// Request converts the body into an executor request submitted by relayer.
func (b BuyBody) Request(relayer common.Address) (BuyRequest, error) {
	p := &parser{}
	req := BuyRequest{
		Market: p.address("market", b.Market),
		Intent: domain.BuyIntent{
			Buyer:        p.address("buyer", b.Intent.Buyer),
			Recipient:    p.address("recipient", b.Intent.Recipient),
			NativeAmount: p.amount("native_amount", b.Intent.NativeAmount, false),
			Nonce:        b.Intent.Nonce,
			Deadline:     b.Intent.Deadline,
			Relayer:      p.address("relayer", b.Intent.Relayer),
		},
		Signature:    p.signature(b.Signature),
		Relayer:      relayer,
		MinTokensOut: p.optional("min_tokens_out", b.MinTokensOut),
	}
	if p.err != nil {
		return BuyRequest{}, p.err
	}
	return req, nil
}

// Request converts the body into an executor request submitted by relayer.
func (b SellBody) Request(relayer common.Address) (SellRequest, error) {
	p := &parser{}
	req := SellRequest{
		Market: p.address("market", b.Market),
		Intent: domain.SellIntent{
			Seller:      p.address("seller", b.Intent.Seller),
			Recipient:   p.address("recipient", b.Intent.Recipient),
			TokenAmount: p.amount("token_amount", b.Intent.TokenAmount, false),
			Nonce:       b.Intent.Nonce,
			Deadline:    b.Intent.Deadline,
			Relayer:     p.address("relayer", b.Intent.Relayer),
		},
		Signature:     p.signature(b.Signature),
		Relayer:       relayer,
		MinReserveOut: p.optional("min_reserve_out", b.MinReserveOut),
	}
	if p.err != nil {
		return SellRequest{}, p.err
	}
	return req, nil
}

// parser keeps the first field error.
type parser struct{ err error }

func (p *parser) fail(field, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("relay: field %s: bad value %q: %w", field, value, domain.ErrInvalidIntent)
	}
}

func (p *parser) address(field, v string) common.Address {
	if !common.IsHexAddress(v) {
		p.fail(field, v)
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func (p *parser) amount(field, v string, emptyIsZero bool) *big.Int {
	v = strings.TrimSpace(v)
	if v == "" && emptyIsZero {
		return new(big.Int)
	}
	x, ok := new(big.Int).SetString(v, 10)
	if !ok {
		p.fail(field, v)
		return new(big.Int)
	}
	return x
}

func (p *parser) optional(field, v string) *big.Int {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return p.amount(field, v, false)
}

func (p *parser) signature(v string) []byte {
	sig, err := hexutil.Decode(v)
	if err != nil {
		p.fail("signature", v)
		return nil
	}
	return sig
}

// ResultJSON is the response to a successful execution.
type ResultJSON struct {
	Stage   domain.Stage        `json:"stage"`
	Signer  string              `json:"signer"`
	Market  domain.MarketJSON   `json:"market"`
	Events  []domain.EventJSON  `json:"events"`
	Handoff *domain.HandoffJSON `json:"handoff,omitempty"`
}

// JSON converts r to its wire shape.
func (r Result) JSON() ResultJSON {
	out := ResultJSON{
		Stage:  r.Stage,
		Signer: r.Signer.Hex(),
		Market: r.Market.JSON(),
		Events: make([]domain.EventJSON, len(r.Events)),
	}
	for i, ev := range r.Events {
		out.Events[i] = ev.JSON()
	}
	if r.Handoff != nil {
		h := r.Handoff.JSON()
		out.Handoff = &h
	}
	return out
}
