// Package relay executes relayer-submitted intents against the curve ledger.
//
// Every execution walks the same state machine:
//
//	received -> verified -> applied -> settled -> nonce_advanced -> emitted
//
// and runs inside a single ledger transaction, so a rejection at any stage
// leaves no trace. Fan-out to subscribers happens after commit.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/launchpad/internal/authz"
	"github.com/alanyoungcy/launchpad/internal/curve"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/launch"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/nonce"
)

// EventSink receives committed executions for fan-out.
type EventSink interface {
	Publish(ctx context.Context, market domain.Market, events []domain.Event)
	MarketHalted(ctx context.Context, market common.Address, cause error)
}

// Metrics records execution outcomes.
type Metrics interface {
	RecordExecution(ctx context.Context, action, outcome string, duration time.Duration)
}

// Config carries the signing domain and launch policy.
type Config struct {
	DomainName    string
	DomainVersion string
	ChainID       *big.Int
	Factory       common.Address
	FeeRecipient  common.Address
	AutoMigrate   bool
	Template      ledger.Template
}

// CreateRequest is a relayed Create intent.
type CreateRequest struct {
	Intent    domain.CreateIntent
	Signature []byte
	Relayer   common.Address
}

// BuyRequest is a relayed Buy intent. MinTokensOut is the relayer-supplied
// slippage bound and may be nil.
type BuyRequest struct {
	Market       common.Address
	Intent       domain.BuyIntent
	Signature    []byte
	Relayer      common.Address
	MinTokensOut *big.Int
}

// SellRequest is a relayed Sell intent. MinReserveOut may be nil.
type SellRequest struct {
	Market        common.Address
	Intent        domain.SellIntent
	Signature     []byte
	Relayer       common.Address
	MinReserveOut *big.Int
}

// Result is the outcome of a successful execution.
type Result struct {
	Stage   domain.Stage
	Signer  common.Address
	Market  domain.Market
	Events  []domain.Event
	Handoff *domain.Handoff
}

// Executor runs relayed intents.
type Executor struct {
	ledger  domain.Ledger
	nonces  *nonce.Registry
	auth    *authz.Authorizer
	gate    *launch.Gate
	cfg     Config
	sink    EventSink
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(
	l domain.Ledger,
	nonces *nonce.Registry,
	auth *authz.Authorizer,
	gate *launch.Gate,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		ledger: l,
		nonces: nonces,
		auth:   auth,
		gate:   gate,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "relay")),
		now:    time.Now,
	}
}

// WithSink attaches post-commit fan-out.
func (e *Executor) WithSink(sink EventSink) *Executor {
	e.sink = sink
	return e
}

// WithMetrics attaches execution metrics.
func (e *Executor) WithMetrics(m Metrics) *Executor {
	e.metrics = m
	return e
}

// WithClock overrides the time source used for event and market timestamps.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// CreateDomain is the signing domain for Create intents.
func (e *Executor) CreateDomain() domain.SigningDomain {
	return e.signingDomain(e.cfg.Factory)
}

// MarketDomain is the signing domain for Buy and Sell intents on market.
func (e *Executor) MarketDomain(market common.Address) domain.SigningDomain {
	return e.signingDomain(market)
}

func (e *Executor) signingDomain(contract common.Address) domain.SigningDomain {
	return domain.SigningDomain{
		Name:              e.cfg.DomainName,
		Version:           e.cfg.DomainVersion,
		ChainID:           e.cfg.ChainID,
		VerifyingContract: contract,
	}
}

// Preflight runs authorization for an intent without executing it.
func (e *Executor) Preflight(ctx context.Context, market common.Address, intent domain.Intent, sig []byte, relayer common.Address) (common.Address, error) {
	d := e.MarketDomain(market)
	if intent.Kind() == domain.IntentCreate {
		d = e.CreateDomain()
	}
	var signer common.Address
	err := e.ledger.View(ctx, func(tx domain.LedgerTx) error {
		var err error
		signer, err = e.auth.Verify(ctx, tx, intent, sig, d, relayer)
		return err
	})
	return signer, err
}

// Create opens a new market. The relayer pays the creation fee and the
// initial deposit, which runs as a buy for the creator.
func (e *Executor) Create(ctx context.Context, req CreateRequest) (Result, error) {
	return e.execute(ctx, &createAction{e: e, req: req})
}

// Buy spends the buyer's reserve asset on the curve.
func (e *Executor) Buy(ctx context.Context, req BuyRequest) (Result, error) {
	return e.execute(ctx, &buyAction{e: e, req: req})
}

// Sell returns tokens to the curve.
func (e *Executor) Sell(ctx context.Context, req SellRequest) (Result, error) {
	return e.execute(ctx, &sellAction{e: e, req: req})
}

// Migrate launches a funded market on operator request.
func (e *Executor) Migrate(ctx context.Context, market common.Address) (Result, error) {
	start := e.now()
	var res Result
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, market)
		if err != nil {
			return err
		}
		ev, h, err := e.migrate(ctx, tx, &m, common.Address{}, common.Address{})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("relay: append launch event: %w", err)
		}
		res = Result{Stage: domain.StageEmitted, Market: m, Events: []domain.Event{ev}, Handoff: &h}
		return nil
	})
	e.record(ctx, "migrate", err, start)
	if err != nil {
		e.logger.WarnContext(ctx, "migrate rejected",
			slog.String("market", market.Hex()),
			slog.String("reason", domain.FailureKind(err)),
			slog.String("error", err.Error()),
		)
		return Result{Stage: domain.StageRejected}, fmt.Errorf("relay: migrate: %w", err)
	}
	e.logger.InfoContext(ctx, "market launched", slog.String("market", market.Hex()))
	e.publish(ctx, res)
	return res, nil
}

// action is the per-kind part of an execution.
type action interface {
	kind() domain.IntentKind
	intent() domain.Intent
	signature() []byte
	relayer() common.Address
	marketAddress() common.Address
	signingDomain() domain.SigningDomain
	// validate checks the intent payload once the signature is trusted.
	validate() error
	// apply runs the curve logic and persists the market.
	apply(ctx context.Context, tx domain.LedgerTx) error
	// settle moves the reserve asset and tokens.
	settle(ctx context.Context, tx domain.LedgerTx) error
	market() *domain.Market
	event() domain.Event
}

func (e *Executor) execute(ctx context.Context, a action) (Result, error) {
	start := e.now()
	var (
		res   Result
		stage domain.Stage
	)

	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		stage = domain.StageReceived
		signer, err := e.auth.Verify(ctx, tx, a.intent(), a.signature(), a.signingDomain(), a.relayer())
		if err != nil {
			return err
		}
		stage = domain.StageVerified

		if err := a.validate(); err != nil {
			return err
		}
		if err := a.apply(ctx, tx); err != nil {
			return err
		}
		stage = domain.StageApplied

		if err := a.settle(ctx, tx); err != nil {
			return err
		}
		m := a.market()
		events := []domain.Event{e.stamp(a.event(), a, signer)}

		var handoff *domain.Handoff
		if e.cfg.AutoMigrate && m.Launching && launch.CheckProgress(*m).ReachedGoal {
			ev, h, err := e.migrate(ctx, tx, m, signer, a.relayer())
			if err != nil {
				return err
			}
			events = append(events, ev)
			handoff = &h
		}
		stage = domain.StageSettled

		if err := e.nonces.Consume(ctx, tx, signer, a.intent().IntentNonce()); err != nil {
			return err
		}
		stage = domain.StageNonceAdvanced

		for _, ev := range events {
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return fmt.Errorf("relay: append event: %w", err)
			}
		}
		stage = domain.StageEmitted

		res = Result{Stage: stage, Signer: signer, Market: m.Clone(), Events: events, Handoff: handoff}
		return nil
	})

	e.record(ctx, string(a.kind()), err, start)
	if err != nil {
		return Result{Stage: domain.StageRejected}, e.reject(ctx, a, stage, err)
	}

	e.logger.InfoContext(ctx, "intent executed",
		slog.String("action", string(a.kind())),
		slog.String("market", res.Market.Address.Hex()),
		slog.String("signer", res.Signer.Hex()),
		slog.String("relayer", a.relayer().Hex()),
		slog.Uint64("nonce", a.intent().IntentNonce()),
		slog.Bool("launched", res.Handoff != nil),
	)
	e.publish(ctx, res)
	return res, nil
}

func (e *Executor) reject(ctx context.Context, a action, stage domain.Stage, err error) error {
	rejectErr := &domain.RejectError{Action: a.kind(), Stage: stage, Err: err}
	attrs := []any{
		slog.String("action", string(a.kind())),
		slog.String("stage", string(stage)),
		slog.String("reason", domain.FailureKind(err)),
		slog.String("relayer", a.relayer().Hex()),
		slog.String("error", err.Error()),
	}

	if !haltOnReject(a.kind(), err) {
		if errors.Is(err, domain.ErrInvariantBroken) && !errors.Is(err, domain.ErrMarketHalted) {
			e.logger.ErrorContext(ctx, "reserve invariant broken", attrs...)
		} else {
			e.logger.WarnContext(ctx, "intent rejected", attrs...)
		}
		return rejectErr
	}

	e.logger.ErrorContext(ctx, "reserve invariant broken, halting market", attrs...)
	if addr := a.marketAddress(); addr != (common.Address{}) {
		halted, haltErr := e.halt(ctx, addr)
		if haltErr != nil {
			e.logger.ErrorContext(ctx, "halt market failed",
				slog.String("market", addr.Hex()),
				slog.String("error", haltErr.Error()),
			)
		}
		if halted && e.sink != nil {
			e.sink.MarketHalted(ctx, addr, err)
		}
	}
	return rejectErr
}

// haltOnReject reports whether a rejection must halt its market. A create
// rolls back the market it opened, and a market that is already halted has
// nothing left to mark.
func haltOnReject(kind domain.IntentKind, err error) bool {
	return errors.Is(err, domain.ErrInvariantBroken) &&
		!errors.Is(err, domain.ErrMarketHalted) &&
		kind != domain.IntentCreate
}

// halt marks a market so every later curve action fails. It reports whether
// this call changed the flag.
func (e *Executor) halt(ctx context.Context, addr common.Address) (bool, error) {
	var changed bool
	err := e.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		m, err := tx.GetMarket(ctx, addr)
		if err != nil {
			return err
		}
		if m.Halted {
			return nil
		}
		m.Halted = true
		m.UpdatedAt = e.now().UTC()
		changed = true
		return tx.UpdateMarket(ctx, m)
	})
	return changed, err
}

func (e *Executor) migrate(ctx context.Context, tx domain.LedgerTx, m *domain.Market, signer, relayer common.Address) (domain.Event, domain.Handoff, error) {
	h, err := e.gate.Migrate(ctx, tx, m)
	if err != nil {
		return domain.Event{}, domain.Handoff{}, err
	}
	return domain.Event{
		ID:             uuid.NewString(),
		Kind:           domain.EventLaunch,
		Market:         m.Address,
		Signer:         signer,
		Relayer:        relayer,
		Recipient:      h.LiquidityVenue,
		NativeAmount:   h.ReserveAmount,
		TokenAmount:    h.TokenAmount,
		Fee:            h.ListingFee,
		Refund:         new(big.Int),
		Price:          curve.Price(m.Curve, m.TotalSupply),
		TotalSupply:    new(big.Int).Set(m.TotalSupply),
		ReserveBalance: new(big.Int).Set(m.ReserveBalance),
		CreatedAt:      h.CreatedAt,
	}, h, nil
}

func (e *Executor) stamp(ev domain.Event, a action, signer common.Address) domain.Event {
	m := a.market()
	ev.ID = uuid.NewString()
	ev.Market = m.Address
	ev.Signer = signer
	ev.Relayer = a.relayer()
	ev.Nonce = a.intent().IntentNonce()
	ev.TotalSupply = new(big.Int).Set(m.TotalSupply)
	ev.ReserveBalance = new(big.Int).Set(m.ReserveBalance)
	ev.CreatedAt = e.now().UTC()
	return ev
}

func (e *Executor) publish(ctx context.Context, res Result) {
	if e.sink == nil {
		return
	}
	e.sink.Publish(ctx, res.Market, res.Events)
}

func (e *Executor) record(ctx context.Context, action string, err error, start time.Time) {
	if e.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = domain.FailureKind(err)
	}
	e.metrics.RecordExecution(ctx, action, outcome, e.now().Sub(start))
}
