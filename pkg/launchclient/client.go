// Package launchclient submits signed launchpad intents as a relayer.
//
// A Client holds the relayer's HMAC credentials and the signing domain the
// server verifies against. Intent signers are loaded separately with
// LoadSigner, so one relayer can submit for many users.
package launchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/relay"
)

// Aliases so callers outside this module can name the wire types.
type (
	CreateIntent = domain.CreateIntent
	BuyIntent    = domain.BuyIntent
	SellIntent   = domain.SellIntent
	Result       = relay.ResultJSON
	KeySource    = crypto.KeySource
	Signer       = crypto.IntentSigner
	Credentials  = crypto.HMACAuth
)

// Domain identifies the deployment intents are signed for.
type Domain struct {
	Name    string
	Version string
	ChainID int64
	Factory common.Address
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Relayer is the account the server resolves Credentials to. Intents are
	// bound to it.
	Relayer     common.Address
	Credentials Credentials
	Domain      Domain
	// DeadlineTTL is how long built intents stay valid. Defaults to 10m.
	DeadlineTTL time.Duration
	HTTPClient  *http.Client
}

// Client talks to a launchpad server.
type Client struct {
	baseURL    string
	relayer    common.Address
	auth       Credentials
	domain     Domain
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Client.
func New(cfg Config) *Client {
	ttl := cfg.DeadlineTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		relayer:    cfg.Relayer,
		auth:       cfg.Credentials,
		domain:     cfg.Domain,
		ttl:        ttl,
		httpClient: hc,
		now:        time.Now,
	}
}

// LoadSigner loads an intent signer from a raw hex key or an encrypted
// keystore file.
func LoadSigner(src KeySource) (*Signer, error) {
	key, err := crypto.LoadKey(src)
	if err != nil {
		return nil, fmt.Errorf("launchclient: load key: %w", err)
	}
	return crypto.NewIntentSignerFromKey(key), nil
}

func (c *Client) signingDomain(contract common.Address) domain.SigningDomain {
	return domain.SigningDomain{
		Name:              c.domain.Name,
		Version:           c.domain.Version,
		ChainID:           big.NewInt(c.domain.ChainID),
		VerifyingContract: contract,
	}
}

// MarketAddress returns the address a Create intent from creator with
// tokenID opens.
func (c *Client) MarketAddress(creator common.Address, tokenID *big.Int) common.Address {
	return crypto.MarketAddress(c.domain.Factory, creator, tokenID)
}

func (c *Client) deadline() uint64 {
	return uint64(c.now().Add(c.ttl).Unix())
}

// Nonce returns the next nonce signer must use.
func (c *Client) Nonce(ctx context.Context, signer common.Address) (uint64, error) {
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/nonces/"+signer.Hex(), nil, false, &out); err != nil {
		return 0, fmt.Errorf("launchclient: nonce: %w", err)
	}
	return out.Nonce, nil
}

// SignCreate signs a fully populated Create intent.
func (c *Client) SignCreate(s *Signer, in CreateIntent) (relay.CreateBody, error) {
	sig, err := s.Sign(c.signingDomain(c.domain.Factory), in)
	if err != nil {
		return relay.CreateBody{}, fmt.Errorf("launchclient: sign create: %w", err)
	}
	return relay.NewCreateBody(in, sig), nil
}

// SignBuy signs a fully populated Buy intent for market.
func (c *Client) SignBuy(s *Signer, market common.Address, in BuyIntent, minTokensOut *big.Int) (relay.BuyBody, error) {
	sig, err := s.Sign(c.signingDomain(market), in)
	if err != nil {
		return relay.BuyBody{}, fmt.Errorf("launchclient: sign buy: %w", err)
	}
	return relay.NewBuyBody(market, in, sig, minTokensOut), nil
}

// SignSell signs a fully populated Sell intent for market.
func (c *Client) SignSell(s *Signer, market common.Address, in SellIntent, minReserveOut *big.Int) (relay.SellBody, error) {
	sig, err := s.Sign(c.signingDomain(market), in)
	if err != nil {
		return relay.SellBody{}, fmt.Errorf("launchclient: sign sell: %w", err)
	}
	return relay.NewSellBody(market, in, sig, minReserveOut), nil
}

// SubmitCreate relays a signed Create intent.
func (c *Client) SubmitCreate(ctx context.Context, body relay.CreateBody) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/api/relay/create", body, true, &res)
	return res, err
}

// SubmitBuy relays a signed Buy intent.
func (c *Client) SubmitBuy(ctx context.Context, body relay.BuyBody) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/api/relay/buy", body, true, &res)
	return res, err
}

// SubmitSell relays a signed Sell intent.
func (c *Client) SubmitSell(ctx context.Context, body relay.SellBody) (Result, error) {
	var res Result
	err := c.do(ctx, http.MethodPost, "/api/relay/sell", body, true, &res)
	return res, err
}

// Verify preflights a signed body of the given kind ("create", "buy" or
// "sell") and returns the recovered signer.
func (c *Client) Verify(ctx context.Context, kind domain.IntentKind, body any) (common.Address, error) {
	var out struct {
		Signer string `json:"signer"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/relay/verify/"+string(kind), body, true, &out); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(out.Signer), nil
}

// CreateParams are the caller-chosen fields of a Create intent.
type CreateParams struct {
	Name           string
	Symbol         string
	TokenID        *big.Int
	InitialDeposit *big.Int
}

// Create builds a Create intent with the signer's current nonce, signs it
// and relays it.
func (c *Client) Create(ctx context.Context, s *Signer, p CreateParams) (Result, error) {
	n, err := c.Nonce(ctx, s.Address())
	if err != nil {
		return Result{}, err
	}
	body, err := c.SignCreate(s, CreateIntent{
		Creator:        s.Address(),
		Name:           p.Name,
		Symbol:         p.Symbol,
		TokenID:        p.TokenID,
		InitialDeposit: p.InitialDeposit,
		Nonce:          n,
		Deadline:       c.deadline(),
		Relayer:        c.relayer,
	})
	if err != nil {
		return Result{}, err
	}
	return c.SubmitCreate(ctx, body)
}

// Buy spends amount of the signer's reserve on market, crediting recipient
// (the signer when zero).
func (c *Client) Buy(ctx context.Context, s *Signer, market, recipient common.Address, amount, minTokensOut *big.Int) (Result, error) {
	n, err := c.Nonce(ctx, s.Address())
	if err != nil {
		return Result{}, err
	}
	if recipient == (common.Address{}) {
		recipient = s.Address()
	}
	body, err := c.SignBuy(s, market, BuyIntent{
		Buyer:        s.Address(),
		Recipient:    recipient,
		NativeAmount: amount,
		Nonce:        n,
		Deadline:     c.deadline(),
		Relayer:      c.relayer,
	}, minTokensOut)
	if err != nil {
		return Result{}, err
	}
	return c.SubmitBuy(ctx, body)
}

// Sell returns amount tokens to market, paying recipient (the signer when
// zero).
func (c *Client) Sell(ctx context.Context, s *Signer, market, recipient common.Address, amount, minReserveOut *big.Int) (Result, error) {
	n, err := c.Nonce(ctx, s.Address())
	if err != nil {
		return Result{}, err
	}
	if recipient == (common.Address{}) {
		recipient = s.Address()
	}
	body, err := c.SignSell(s, market, SellIntent{
		Seller:      s.Address(),
		Recipient:   recipient,
		TokenAmount: amount,
		Nonce:       n,
		Deadline:    c.deadline(),
		Relayer:     c.relayer,
	}, minReserveOut)
	if err != nil {
		return Result{}, err
	}
	return c.SubmitSell(ctx, body)
}

// APIError is a non-2xx response. It unwraps to the matching domain error
// when the server reported a known failure kind.
type APIError struct {
	Status  int
	Message string
	Kind    string
	Stage   domain.Stage
}

func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("launchclient: %d %s at %s: %s", e.Status, e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("launchclient: %d %s: %s", e.Status, e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return domain.ErrorForKind(e.Kind) }

func (c *Client) do(ctx context.Context, method, path string, body any, signed bool, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("launchclient: marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("launchclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		for k, v := range c.auth.Headers(method, path, string(raw)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("launchclient: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("launchclient: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var env struct {
			Error string       `json:"error"`
			Kind  string       `json:"kind"`
			Stage domain.Stage `json:"stage"`
		}
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			apiErr.Message, apiErr.Kind, apiErr.Stage = env.Error, env.Kind, env.Stage
		}
		if apiErr.Kind == "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				apiErr.Kind = "UNAUTHORIZED"
			case http.StatusTooManyRequests:
				apiErr.Kind = "RATE_LIMITED"
			case http.StatusNotFound:
				apiErr.Kind = "NOT_FOUND"
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("launchclient: decode response: %w", err)
	}
	return nil
}
