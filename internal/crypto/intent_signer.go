package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var intentTypes = apitypes.Types{
	"EIP712Domain": domainFields,
	"Create": {
		{Name: "creator", Type: "address"},
		{Name: "name", Type: "string"},
		{Name: "symbol", Type: "string"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "initialDeposit", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "relayer", Type: "address"},
	},
	"Buy": {
		{Name: "buyer", Type: "address"},
		{Name: "recipient", Type: "address"},
		{Name: "nativeAmount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "relayer", Type: "address"},
	},
	"Sell": {
		{Name: "seller", Type: "address"},
		{Name: "recipient", Type: "address"},
		{Name: "tokenAmount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "relayer", Type: "address"},
	},
}

// IntentSigner signs intents off-line, the way a wallet would through
// eth_signTypedData_v4.
type IntentSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIntentSigner creates an IntentSigner from a hex-encoded secp256k1 key.
func NewIntentSigner(privateKeyHex string) (*IntentSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewIntentSignerFromKey(pk), nil
}

// NewIntentSignerFromKey wraps an already-parsed key.
func NewIntentSignerFromKey(pk *ecdsa.PrivateKey) *IntentSigner {
	return &IntentSigner{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
}

// Address returns the signer's address.
func (s *IntentSigner) Address() common.Address {
	return s.address
}

// Sign returns the 65-byte r || s || v signature (v in {27,28}) over intent
// under d.
func (s *IntentSigner) Sign(d domain.SigningDomain, intent domain.Intent) ([]byte, error) {
	td, err := TypedData(d, intent)
	if err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: hash typed data: %w", err)
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// TypedData renders intent as an eth_signTypedData_v4 payload.
func TypedData(d domain.SigningDomain, intent domain.Intent) (apitypes.TypedData, error) {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	td := apitypes.TypedData{
		Types: intentTypes,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
	}

	switch in := intent.(type) {
	case domain.CreateIntent:
		td.PrimaryType = "Create"
		td.Message = apitypes.TypedDataMessage{
			"creator":        in.Creator.Hex(),
			"name":           in.Name,
			"symbol":         in.Symbol,
			"tokenId":        new(big.Int).Set(orZero(in.TokenID)),
			"initialDeposit": new(big.Int).Set(orZero(in.InitialDeposit)),
			"nonce":          new(big.Int).SetUint64(in.Nonce),
			"deadline":       new(big.Int).SetUint64(in.Deadline),
			"relayer":        in.Relayer.Hex(),
		}
	case domain.BuyIntent:
		td.PrimaryType = "Buy"
		td.Message = apitypes.TypedDataMessage{
			"buyer":        in.Buyer.Hex(),
			"recipient":    in.Recipient.Hex(),
			"nativeAmount": new(big.Int).Set(orZero(in.NativeAmount)),
			"nonce":        new(big.Int).SetUint64(in.Nonce),
			"deadline":     new(big.Int).SetUint64(in.Deadline),
			"relayer":      in.Relayer.Hex(),
		}
	case domain.SellIntent:
		td.PrimaryType = "Sell"
		td.Message = apitypes.TypedDataMessage{
			"seller":      in.Seller.Hex(),
			"recipient":   in.Recipient.Hex(),
			"tokenAmount": new(big.Int).Set(orZero(in.TokenAmount)),
			"nonce":       new(big.Int).SetUint64(in.Nonce),
			"deadline":    new(big.Int).SetUint64(in.Deadline),
			"relayer":     in.Relayer.Hex(),
		}
	default:
		return apitypes.TypedData{}, fmt.Errorf("crypto/signer: unsupported intent %T", intent)
	}
	return td, nil
}
