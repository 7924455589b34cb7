package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/curve"
	"github.com/alanyoungcy/launchpad/internal/domain"
)

// Template holds the parameters every new market starts with.
type Template struct {
	Curve       domain.CurveParams
	Fees        domain.FeeSchedule
	SaleAmount  *big.Int
	MaxSupply   *big.Int
	FundingGoal *big.Int
}

// Validate reports every problem with t at once.
func (t Template) Validate() error {
	var errs []error
	if err := curve.Validate(t.Curve); err != nil {
		errs = append(errs, err)
	}
	if t.SaleAmount == nil || t.SaleAmount.Sign() <= 0 {
		errs = append(errs, errors.New("sale amount must be positive"))
	}
	if t.MaxSupply == nil || (t.SaleAmount != nil && t.MaxSupply.Cmp(t.SaleAmount) < 0) {
		errs = append(errs, errors.New("max supply must be at least the sale amount"))
	}
	if t.FundingGoal == nil || t.FundingGoal.Sign() <= 0 {
		errs = append(errs, errors.New("funding goal must be positive"))
	}
	if t.Fees.TradingFeeBps < 0 || t.Fees.TradingFeeBps >= bpsDenominator {
		errs = append(errs, fmt.Errorf("trading fee %d bps out of range", t.Fees.TradingFeeBps))
	}
	if t.Fees.ListingFeeBps < 0 || t.Fees.ListingFeeBps >= bpsDenominator {
		errs = append(errs, fmt.Errorf("listing fee %d bps out of range", t.Fees.ListingFeeBps))
	}
	if t.Fees.CreationFee == nil || t.Fees.CreationFee.Sign() < 0 {
		errs = append(errs, errors.New("creation fee must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("ledger: invalid market template: %s", strings.Join(msgs, "; "))
}

// Open constructs the initial state of a new market: empty supply, empty
// reserve and launching.
func (t Template) Open(addr, creator common.Address, name, symbol string, tokenID *big.Int, now time.Time) domain.Market {
	m := domain.Market{
		Address:        addr,
		Creator:        creator,
		Name:           name,
		Symbol:         symbol,
		TokenID:        tokenID,
		Curve:          t.Curve,
		Fees:           t.Fees,
		TotalSupply:    new(big.Int),
		ReserveBalance: new(big.Int),
		SaleAmount:     t.SaleAmount,
		MaxSupply:      t.MaxSupply,
		FundingGoal:    t.FundingGoal,
		FeesAccrued:    new(big.Int),
		Launching:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return m.Clone()
}
