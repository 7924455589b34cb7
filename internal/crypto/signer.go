package crypto

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type strings. Field order is part of the hash.
// --------------------------------------------------------------------------

const (
	DomainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	CreateType = "Create(address creator,string name,string symbol,uint256 tokenId,uint256 initialDeposit,uint256 nonce,uint256 deadline,address relayer)"
	BuyType    = "Buy(address buyer,address recipient,uint256 nativeAmount,uint256 nonce,uint256 deadline,address relayer)"
	SellType   = "Sell(address seller,address recipient,uint256 tokenAmount,uint256 nonce,uint256 deadline,address relayer)"
)

var (
	domainTypeHash = ethcrypto.Keccak256([]byte(DomainType))
	createTypeHash = ethcrypto.Keccak256([]byte(CreateType))
	buyTypeHash    = ethcrypto.Keccak256([]byte(BuyType))
	sellTypeHash   = ethcrypto.Keccak256([]byte(SellType))

	// marketInitCodeHash salts market address derivation.
	marketInitCodeHash = ethcrypto.Keccak256([]byte("launchpad.market.v1"))
)

// SignatureLength is the size of an r || s || v signature.
const SignatureLength = 65

// DomainSeparator returns
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func DomainSeparator(d domain.SigningDomain) []byte {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return ethcrypto.Keccak256(
		concatBytes(
			domainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(chainID),
			addressWord(d.VerifyingContract),
		),
	)
}

// StructHash encodes and hashes an intent according to its EIP-712 schema.
func StructHash(intent domain.Intent) ([]byte, error) {
	switch in := intent.(type) {
	case domain.CreateIntent:
		return ethcrypto.Keccak256(
			concatBytes(
				createTypeHash,
				addressWord(in.Creator),
				ethcrypto.Keccak256([]byte(in.Name)),
				ethcrypto.Keccak256([]byte(in.Symbol)),
				bigIntTo32Bytes(orZero(in.TokenID)),
				bigIntTo32Bytes(orZero(in.InitialDeposit)),
				uint64Word(in.Nonce),
				uint64Word(in.Deadline),
				addressWord(in.Relayer),
			),
		), nil
	case domain.BuyIntent:
		return ethcrypto.Keccak256(
			concatBytes(
				buyTypeHash,
				addressWord(in.Buyer),
				addressWord(in.Recipient),
				bigIntTo32Bytes(orZero(in.NativeAmount)),
				uint64Word(in.Nonce),
				uint64Word(in.Deadline),
				addressWord(in.Relayer),
			),
		), nil
	case domain.SellIntent:
		return ethcrypto.Keccak256(
			concatBytes(
				sellTypeHash,
				addressWord(in.Seller),
				addressWord(in.Recipient),
				bigIntTo32Bytes(orZero(in.TokenAmount)),
				uint64Word(in.Nonce),
				uint64Word(in.Deadline),
				addressWord(in.Relayer),
			),
		), nil
	default:
		return nil, fmt.Errorf("crypto/signer: unsupported intent %T", intent)
	}
}

// TypedDataHash returns the digest a signer signs for intent under d:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func TypedDataHash(d domain.SigningDomain, intent domain.Intent) ([]byte, error) {
	structHash, err := StructHash(intent)
	if err != nil {
		return nil, err
	}
	return eip712Hash(DomainSeparator(d), structHash), nil
}

// RecoverSigner returns the address that produced sig over digest. Both
// v in {27,28} and v in {0,1} are accepted; high-s signatures are rejected.
func RecoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("crypto/signer: signature length %d, want %d", len(sig), SignatureLength)
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !ethcrypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, errors.New("crypto/signer: invalid signature values")
	}

	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// MarketAddress derives the deterministic address of the market a Create
// intent opens.
func MarketAddress(factory, creator common.Address, tokenID *big.Int) common.Address {
	var salt [32]byte
	copy(salt[:], ethcrypto.Keccak256(addressWord(creator), bigIntTo32Bytes(orZero(tokenID))))
	return ethcrypto.CreateAddress2(factory, salt, marketInitCodeHash)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// eip712Hash computes the final EIP-712 digest.
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func uint64Word(v uint64) []byte {
	return bigIntTo32Bytes(new(big.Int).SetUint64(v))
}

// bigIntTo32Bytes returns the 32-byte big-endian encoding of a non-negative
// big.Int.
func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	var total int
	for _, s := range slices {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range slices {
		out = append(out, s...)
	}
	return out
}
