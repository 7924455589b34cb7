package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// CustodyService is the operator entry point for funding accounts. It stands
// in for the external token contract: deposits credit reserve balances and
// approvals set the allowance the engine may pull.
type CustodyService struct {
	ledger domain.Ledger
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewCustodyService creates a CustodyService. audit may be nil.
func NewCustodyService(l domain.Ledger, audit domain.AuditStore, logger *slog.Logger) *CustodyService {
	return &CustodyService{
		ledger: l,
		audit:  audit,
		logger: logger.With(slog.String("component", "custody")),
	}
}

// Deposit credits amount to owner and returns the new balance.
func (s *CustodyService) Deposit(ctx context.Context, owner common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("custody: deposit: %w", domain.ErrZeroAmount)
	}
	var bal *big.Int
	err := s.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.CreditNative(ctx, owner, amount); err != nil {
			return err
		}
		var err error
		bal, err = tx.NativeBalance(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("custody: deposit %s: %w", owner.Hex(), err)
	}

	s.logger.InfoContext(ctx, "deposit credited",
		slog.String("owner", owner.Hex()),
		slog.String("amount", amount.String()),
	)
	s.record(ctx, "custody.deposit", owner, amount)
	return bal, nil
}

// Approve sets the allowance owner grants the engine. Zero revokes it.
func (s *CustodyService) Approve(ctx context.Context, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("custody: approve: negative allowance: %w", domain.ErrInvalidIntent)
	}
	err := s.ledger.Atomic(ctx, func(tx domain.LedgerTx) error {
		return tx.SetAllowance(ctx, owner, amount)
	})
	if err != nil {
		return fmt.Errorf("custody: approve %s: %w", owner.Hex(), err)
	}

	s.logger.InfoContext(ctx, "allowance set",
		slog.String("owner", owner.Hex()),
		slog.String("amount", amount.String()),
	)
	s.record(ctx, "custody.approve", owner, amount)
	return nil
}

func (s *CustodyService) record(ctx context.Context, event string, owner common.Address, amount *big.Int) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, map[string]any{
		"owner":  owner.Hex(),
		"amount": amount.String(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
