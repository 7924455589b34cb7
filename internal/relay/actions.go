package relay

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/curve"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/ledger"
)

// --- create ---

type createAction struct {
	e   *Executor
	req CreateRequest

	m   domain.Market
	buy *ledger.BuyResult
}

func (a *createAction) kind() domain.IntentKind { return domain.IntentCreate }
func (a *createAction) intent() domain.Intent   { return a.req.Intent }
func (a *createAction) signature() []byte       { return a.req.Signature }
func (a *createAction) relayer() common.Address { return a.req.Relayer }
func (a *createAction) market() *domain.Market  { return &a.m }

func (a *createAction) marketAddress() common.Address {
	if a.req.Intent.TokenID == nil {
		return common.Address{}
	}
	return crypto.MarketAddress(a.e.cfg.Factory, a.req.Intent.Creator, a.req.Intent.TokenID)
}

func (a *createAction) signingDomain() domain.SigningDomain { return a.e.CreateDomain() }

func (a *createAction) validate() error {
	in := a.req.Intent
	switch {
	case in.Name == "" || in.Symbol == "":
		return fmt.Errorf("relay: create: name and symbol are required: %w", domain.ErrInvalidIntent)
	case in.TokenID == nil || in.TokenID.Sign() < 0:
		return fmt.Errorf("relay: create: token id: %w", domain.ErrInvalidIntent)
	case in.InitialDeposit != nil && in.InitialDeposit.Sign() < 0:
		return fmt.Errorf("relay: create: negative deposit: %w", domain.ErrInvalidIntent)
	}
	return nil
}

func (a *createAction) apply(ctx context.Context, tx domain.LedgerTx) error {
	in := a.req.Intent
	addr := a.marketAddress()
	a.m = a.e.cfg.Template.Open(addr, in.Creator, in.Name, in.Symbol, in.TokenID, a.e.now().UTC())
	if err := tx.InsertMarket(ctx, a.m); err != nil {
		return fmt.Errorf("relay: create %s: %w", addr.Hex(), err)
	}

	if in.InitialDeposit == nil || in.InitialDeposit.Sign() == 0 {
		return nil
	}
	res, err := ledger.ApplyBuy(&a.m, in.InitialDeposit, nil)
	if err != nil {
		return err
	}
	a.buy = &res
	return nil
}

func (a *createAction) settle(ctx context.Context, tx domain.LedgerTx) error {
	payer := a.req.Relayer
	vault := a.m.Address
	feeTo := a.e.cfg.FeeRecipient

	creationFee := a.m.Fees.CreationFee
	if creationFee == nil {
		creationFee = new(big.Int)
	}
	total := new(big.Int).Set(creationFee)
	if a.req.Intent.InitialDeposit != nil {
		total.Add(total, a.req.Intent.InitialDeposit)
	}
	if total.Sign() > 0 {
		if err := tx.PullNative(ctx, payer, vault, total); err != nil {
			return fmt.Errorf("relay: create: pull from relayer: %w", err)
		}
	}

	fees := new(big.Int).Set(creationFee)
	if a.buy != nil {
		fees.Add(fees, a.buy.Fee)
		if err := tx.MintTokens(ctx, vault, a.req.Intent.Creator, a.buy.TokensOut); err != nil {
			return fmt.Errorf("relay: create: mint: %w", err)
		}
		if a.buy.Refund.Sign() > 0 {
			if err := tx.TransferNative(ctx, vault, payer, a.buy.Refund); err != nil {
				return fmt.Errorf("relay: create: refund: %w", err)
			}
		}
	}
	if fees.Sign() > 0 {
		if err := tx.TransferNative(ctx, vault, feeTo, fees); err != nil {
			return fmt.Errorf("relay: create: fees: %w", err)
		}
	}

	a.m.FeesAccrued.Add(a.m.FeesAccrued, creationFee)
	a.m.UpdatedAt = a.e.now().UTC()
	if err := tx.UpdateMarket(ctx, a.m); err != nil {
		return fmt.Errorf("relay: create: update market: %w", err)
	}
	return nil
}

func (a *createAction) event() domain.Event {
	ev := domain.Event{
		Kind:         domain.EventCreate,
		Recipient:    a.req.Intent.Creator,
		NativeAmount: new(big.Int),
		TokenAmount:  new(big.Int),
		Fee:          new(big.Int),
		Refund:       new(big.Int),
		Price:        curve.Price(a.m.Curve, a.m.TotalSupply),
	}
	if fee := a.m.Fees.CreationFee; fee != nil {
		ev.Fee.Set(fee)
	}
	if a.buy != nil {
		ev.NativeAmount.Set(a.buy.ReserveIn)
		ev.TokenAmount.Set(a.buy.TokensOut)
		ev.Fee.Add(ev.Fee, a.buy.Fee)
		ev.Refund.Set(a.buy.Refund)
	}
	return ev
}

// --- buy ---

type buyAction struct {
	e   *Executor
	req BuyRequest

	m   domain.Market
	res ledger.BuyResult
}

func (a *buyAction) kind() domain.IntentKind             { return domain.IntentBuy }
func (a *buyAction) intent() domain.Intent               { return a.req.Intent }
func (a *buyAction) signature() []byte                   { return a.req.Signature }
func (a *buyAction) relayer() common.Address             { return a.req.Relayer }
func (a *buyAction) market() *domain.Market              { return &a.m }
func (a *buyAction) marketAddress() common.Address       { return a.req.Market }
func (a *buyAction) signingDomain() domain.SigningDomain { return a.e.MarketDomain(a.req.Market) }

func (a *buyAction) validate() error {
	in := a.req.Intent
	if in.NativeAmount == nil || in.NativeAmount.Sign() == 0 {
		return fmt.Errorf("relay: buy: %w", domain.ErrZeroAmount)
	}
	if in.NativeAmount.Sign() < 0 || in.Recipient == (common.Address{}) {
		return fmt.Errorf("relay: buy: bad amount or recipient: %w", domain.ErrInvalidIntent)
	}
	return nil
}

func (a *buyAction) apply(ctx context.Context, tx domain.LedgerTx) error {
	m, err := tx.GetMarket(ctx, a.req.Market)
	if err != nil {
		return fmt.Errorf("relay: buy: %w", err)
	}
	res, err := ledger.ApplyBuy(&m, a.req.Intent.NativeAmount, a.req.MinTokensOut)
	if err != nil {
		return err
	}
	m.UpdatedAt = a.e.now().UTC()
	if err := tx.UpdateMarket(ctx, m); err != nil {
		return fmt.Errorf("relay: buy: update market: %w", err)
	}
	a.m, a.res = m, res
	return nil
}

func (a *buyAction) settle(ctx context.Context, tx domain.LedgerTx) error {
	buyer := a.req.Intent.Buyer
	vault := a.m.Address
	if err := tx.PullNative(ctx, buyer, vault, a.res.ReserveIn); err != nil {
		return fmt.Errorf("relay: buy: pull from buyer: %w", err)
	}
	if a.res.Fee.Sign() > 0 {
		if err := tx.TransferNative(ctx, vault, a.e.cfg.FeeRecipient, a.res.Fee); err != nil {
			return fmt.Errorf("relay: buy: fee: %w", err)
		}
	}
	if a.res.Refund.Sign() > 0 {
		if err := tx.TransferNative(ctx, vault, buyer, a.res.Refund); err != nil {
			return fmt.Errorf("relay: buy: refund: %w", err)
		}
	}
	if err := tx.MintTokens(ctx, vault, a.req.Intent.Recipient, a.res.TokensOut); err != nil {
		return fmt.Errorf("relay: buy: mint: %w", err)
	}
	return nil
}

func (a *buyAction) event() domain.Event {
	return domain.Event{
		Kind:         domain.EventBuy,
		Recipient:    a.req.Intent.Recipient,
		NativeAmount: a.res.ReserveIn,
		TokenAmount:  a.res.TokensOut,
		Fee:          a.res.Fee,
		Refund:       a.res.Refund,
		Price:        a.res.Price,
	}
}

// --- sell ---

type sellAction struct {
	e   *Executor
	req SellRequest

	m   domain.Market
	res ledger.SellResult
}

func (a *sellAction) kind() domain.IntentKind             { return domain.IntentSell }
func (a *sellAction) intent() domain.Intent               { return a.req.Intent }
func (a *sellAction) signature() []byte                   { return a.req.Signature }
func (a *sellAction) relayer() common.Address             { return a.req.Relayer }
func (a *sellAction) market() *domain.Market              { return &a.m }
func (a *sellAction) marketAddress() common.Address       { return a.req.Market }
func (a *sellAction) signingDomain() domain.SigningDomain { return a.e.MarketDomain(a.req.Market) }

func (a *sellAction) validate() error {
	in := a.req.Intent
	if in.TokenAmount == nil || in.TokenAmount.Sign() == 0 {
		return fmt.Errorf("relay: sell: %w", domain.ErrZeroAmount)
	}
	if in.TokenAmount.Sign() < 0 || in.Recipient == (common.Address{}) {
		return fmt.Errorf("relay: sell: bad amount or recipient: %w", domain.ErrInvalidIntent)
	}
	return nil
}

func (a *sellAction) apply(ctx context.Context, tx domain.LedgerTx) error {
	m, err := tx.GetMarket(ctx, a.req.Market)
	if err != nil {
		return fmt.Errorf("relay: sell: %w", err)
	}
	res, err := ledger.ApplySell(&m, a.req.Intent.TokenAmount, a.req.MinReserveOut)
	if err != nil {
		return err
	}
	m.UpdatedAt = a.e.now().UTC()
	if err := tx.UpdateMarket(ctx, m); err != nil {
		return fmt.Errorf("relay: sell: update market: %w", err)
	}
	a.m, a.res = m, res
	return nil
}

func (a *sellAction) settle(ctx context.Context, tx domain.LedgerTx) error {
	vault := a.m.Address
	if err := tx.BurnTokens(ctx, vault, a.req.Intent.Seller, a.res.TokensIn); err != nil {
		return fmt.Errorf("relay: sell: burn: %w", err)
	}
	if a.res.Payout.Sign() > 0 {
		if err := tx.TransferNative(ctx, vault, a.req.Intent.Recipient, a.res.Payout); err != nil {
			return fmt.Errorf("relay: sell: payout: %w", err)
		}
	}
	if a.res.Fee.Sign() > 0 {
		if err := tx.TransferNative(ctx, vault, a.e.cfg.FeeRecipient, a.res.Fee); err != nil {
			return fmt.Errorf("relay: sell: fee: %w", err)
		}
	}
	return nil
}

func (a *sellAction) event() domain.Event {
	return domain.Event{
		Kind:         domain.EventSell,
		Recipient:    a.req.Intent.Recipient,
		NativeAmount: a.res.Payout,
		TokenAmount:  a.res.TokensIn,
		Fee:          a.res.Fee,
		Refund:       new(big.Int),
		Price:        a.res.Price,
	}
}
