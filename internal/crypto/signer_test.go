package crypto

import (
	"encoding/hex"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testDomain() domain.SigningDomain {
	return domain.SigningDomain{
		Name:              "Sloth Factory",
		Version:           "1",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}
}

func testIntents(signer common.Address) []domain.Intent {
	relayer := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	return []domain.Intent{
		domain.CreateIntent{
			Creator:        signer,
			Name:           "Sloth",
			Symbol:         "SLTH",
			TokenID:        big.NewInt(7),
			InitialDeposit: big.NewInt(1_000_000_000_000_000),
			Nonce:          0,
			Deadline:       1_900_000_000,
			Relayer:        relayer,
		},
		domain.BuyIntent{
			Buyer:        signer,
			Recipient:    common.HexToAddress("0x1111"),
			NativeAmount: big.NewInt(100_000_000_000_000),
			Nonce:        3,
			Deadline:     1_900_000_000,
			Relayer:      relayer,
		},
		domain.SellIntent{
			Seller:      signer,
			Recipient:   signer,
			TokenAmount: new(big.Int).Mul(big.NewInt(500), domain.WAD),
			Nonce:       4,
			Deadline:    1_900_000_000,
			Relayer:     relayer,
		},
	}
}

func TestTypeHashes(t *testing.T) {
	// Type strings must match the on-chain schemas byte for byte.
	assert.Equal(t, "Buy(address buyer,address recipient,uint256 nativeAmount,uint256 nonce,uint256 deadline,address relayer)", BuyType)
	assert.Equal(t,
		"8b73c3c69bb8fe3d512ecc4cf759cc79239f7b179b0ffacaa9a75d522b39400f",
		hex.EncodeToString(ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))),
	)
	assert.Equal(t, ethcrypto.Keccak256([]byte(DomainType)), domainTypeHash)
}

func TestSignAndRecover(t *testing.T) {
	signer, err := NewIntentSigner("0x" + testKeyHex)
	require.NoError(t, err)
	d := testDomain()

	for _, intent := range testIntents(signer.Address()) {
		t.Run(string(intent.Kind()), func(t *testing.T) {
			sig, err := signer.Sign(d, intent)
			require.NoError(t, err)
			require.Len(t, sig, SignatureLength)
			assert.Contains(t, []byte{27, 28}, sig[64])

			// Hand-encoded hash must match the apitypes encoding used to sign.
			td, err := TypedData(d, intent)
			require.NoError(t, err)
			digest, err := TypedDataHash(d, intent)
			require.NoError(t, err)
			apiDigest, _, err := apitypes.TypedDataAndHash(td)
			require.NoError(t, err)
			assert.Equal(t, apiDigest, digest)

			got, err := RecoverSigner(digest, sig)
			require.NoError(t, err)
			assert.Equal(t, signer.Address(), got)
		})
	}
}

func TestRecover_BindsDomainAndContent(t *testing.T) {
	signer, err := NewIntentSigner(testKeyHex)
	require.NoError(t, err)
	d := testDomain()
	buy := testIntents(signer.Address())[1].(domain.BuyIntent)

	sig, err := signer.Sign(d, buy)
	require.NoError(t, err)

	otherChain := d
	otherChain.ChainID = big.NewInt(1)
	otherContract := d
	otherContract.VerifyingContract = common.HexToAddress("0xdeadbeef")
	tampered := buy
	tampered.NativeAmount = new(big.Int).Add(buy.NativeAmount, big.NewInt(1))

	cases := []struct {
		name   string
		domain domain.SigningDomain
		intent domain.Intent
	}{
		{"other chain", otherChain, buy},
		{"other contract", otherContract, buy},
		{"tampered amount", d, tampered},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			digest, err := TypedDataHash(c.domain, c.intent)
			require.NoError(t, err)
			got, err := RecoverSigner(digest, sig)
			if err == nil {
				assert.NotEqual(t, signer.Address(), got)
			}
		})
	}
}

func TestRecover_AcceptsZeroOneV(t *testing.T) {
	signer, err := NewIntentSigner(testKeyHex)
	require.NoError(t, err)
	intent := testIntents(signer.Address())[2]
	sig, err := signer.Sign(testDomain(), intent)
	require.NoError(t, err)
	digest, err := TypedDataHash(testDomain(), intent)
	require.NoError(t, err)

	sig[64] -= 27
	got, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)
}

func TestRecover_RejectsMalformed(t *testing.T) {
	digest := ethcrypto.Keccak256([]byte("x"))

	_, err := RecoverSigner(digest, make([]byte, 64))
	assert.Error(t, err)

	_, err = RecoverSigner(digest, make([]byte, SignatureLength))
	assert.Error(t, err, "zero r and s")

	// s in the upper half of the curve order is malleable.
	signer, err := NewIntentSigner(testKeyHex)
	require.NoError(t, err)
	sig, err := signer.Sign(testDomain(), testIntents(signer.Address())[1])
	require.NoError(t, err)
	s := new(big.Int).SetBytes(sig[32:64])
	highS := new(big.Int).Sub(ethcrypto.S256().Params().N, s)
	copy(sig[32:64], common.LeftPadBytes(highS.Bytes(), 32))
	_, err = RecoverSigner(digest, sig)
	assert.Error(t, err)
}

func TestMarketAddress(t *testing.T) {
	factory := common.HexToAddress("0xfac7")
	creator := common.HexToAddress("0xc0de")

	a := MarketAddress(factory, creator, big.NewInt(1))
	assert.Equal(t, a, MarketAddress(factory, creator, big.NewInt(1)))
	assert.NotEqual(t, a, MarketAddress(factory, creator, big.NewInt(2)))
	assert.NotEqual(t, a, MarketAddress(factory, common.HexToAddress("0xc0df"), big.NewInt(1)))
	assert.NotEqual(t, common.Address{}, a)
}

func TestHMACAuth(t *testing.T) {
	auth := &HMACAuth{Key: "relayer-key", Secret: "s3cr3t", Passphrase: "pass"}
	now := time.Unix(1_700_000_000, 0)
	body := `{"intent":{}}`

	h := auth.HeadersAt("POST", "/api/relay/buy", body, now.Unix())
	assert.Equal(t, "relayer-key", h[HeaderRelayerKey])

	verify := func(method, path, body string, at time.Time) error {
		return auth.Verify(method, path, body, h[HeaderRelayerTimestamp], h[HeaderRelayerPassphrase], h[HeaderRelayerSignature], at, 30*time.Second)
	}

	assert.NoError(t, verify("POST", "/api/relay/buy", body, now))
	assert.Error(t, verify("POST", "/api/relay/sell", body, now), "path is signed")
	assert.Error(t, verify("POST", "/api/relay/buy", body+" ", now), "body is signed")
	assert.Error(t, verify("POST", "/api/relay/buy", body, now.Add(time.Minute)), "stale")

	assert.Error(t, auth.Verify("POST", "/api/relay/buy", body, h[HeaderRelayerTimestamp], "wrong", h[HeaderRelayerSignature], now, time.Minute))
	assert.NotContains(t, auth.String(), "s3cr3t")
}

func TestKeystore(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	blob, err := SealKey(key, "hunter2", 1_000)
	require.NoError(t, err)
	assert.Contains(t, string(blob), ethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	opened, err := OpenKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.FromECDSA(key), ethcrypto.FromECDSA(opened))

	_, err = OpenKey(blob, "wrong")
	assert.Error(t, err)

	_, err = SealKey(key, "", 1_000)
	assert.Error(t, err)

	path := t.TempDir() + "/signer.json"
	require.NoError(t, os.WriteFile(path, blob, 0o600))
	loaded, err := LoadKey(KeySource{KeystorePath: path, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, key.D, loaded.D)

	raw, err := LoadKey(KeySource{RawPrivateKey: "0x" + testKeyHex, KeystorePath: "/nonexistent"})
	require.NoError(t, err)
	assert.Equal(t, key.D, raw.D)

	_, err = LoadKey(KeySource{})
	assert.Error(t, err)
}
