package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IntentKind identifies a relayable action.
type IntentKind string

const (
	IntentCreate IntentKind = "create"
	IntentBuy    IntentKind = "buy"
	IntentSell   IntentKind = "sell"
)

// Valid reports whether k names a known action.
func (k IntentKind) Valid() bool {
	switch k {
	case IntentCreate, IntentBuy, IntentSell:
		return true
	}
	return false
}

// Stage is a step of the relay execution state machine.
type Stage string

const (
	StageReceived      Stage = "received"
	StageVerified      Stage = "verified"
	StageApplied       Stage = "applied"
	StageSettled       Stage = "settled"
	StageNonceAdvanced Stage = "nonce_advanced"
	StageEmitted       Stage = "emitted"
	StageRejected      Stage = "rejected"
)

// Intent is an off-line signed request that a relayer submits on behalf of
// its signer.
type Intent interface {
	Kind() IntentKind
	Signer() common.Address
	IntentNonce() uint64
	IntentDeadline() uint64
	BoundRelayer() common.Address
}

// CreateIntent asks the factory to issue a new token and open its curve.
type CreateIntent struct {
	Creator        common.Address
	Name           string
	Symbol         string
	TokenID        *big.Int
	InitialDeposit *big.Int
	Nonce          uint64
	Deadline       uint64
	Relayer        common.Address
}

func (i CreateIntent) Kind() IntentKind             { return IntentCreate }
func (i CreateIntent) Signer() common.Address       { return i.Creator }
func (i CreateIntent) IntentNonce() uint64          { return i.Nonce }
func (i CreateIntent) IntentDeadline() uint64       { return i.Deadline }
func (i CreateIntent) BoundRelayer() common.Address { return i.Relayer }

// BuyIntent spends NativeAmount of the buyer's reserve asset on the curve.
type BuyIntent struct {
	Buyer        common.Address
	Recipient    common.Address
	NativeAmount *big.Int
	Nonce        uint64
	Deadline     uint64
	Relayer      common.Address
}

func (i BuyIntent) Kind() IntentKind             { return IntentBuy }
func (i BuyIntent) Signer() common.Address       { return i.Buyer }
func (i BuyIntent) IntentNonce() uint64          { return i.Nonce }
func (i BuyIntent) IntentDeadline() uint64       { return i.Deadline }
func (i BuyIntent) BoundRelayer() common.Address { return i.Relayer }

// SellIntent returns TokenAmount tokens to the curve.
type SellIntent struct {
	Seller      common.Address
	Recipient   common.Address
	TokenAmount *big.Int
	Nonce       uint64
	Deadline    uint64
	Relayer     common.Address
}

func (i SellIntent) Kind() IntentKind             { return IntentSell }
func (i SellIntent) Signer() common.Address       { return i.Seller }
func (i SellIntent) IntentNonce() uint64          { return i.Nonce }
func (i SellIntent) IntentDeadline() uint64       { return i.Deadline }
func (i SellIntent) BoundRelayer() common.Address { return i.Relayer }

// SigningDomain is the EIP-712 domain an intent is signed under.
type SigningDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}
