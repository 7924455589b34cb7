package launchclient

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/authz"
	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/launch"
	"github.com/alanyoungcy/launchpad/internal/ledger"
	"github.com/alanyoungcy/launchpad/internal/nonce"
	"github.com/alanyoungcy/launchpad/internal/relay"
	"github.com/alanyoungcy/launchpad/internal/server"
	"github.com/alanyoungcy/launchpad/internal/server/handler"
	"github.com/alanyoungcy/launchpad/internal/server/middleware"
	"github.com/alanyoungcy/launchpad/internal/service"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

const buyerKey = "8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63"

var (
	testDomain = Domain{
		Name:    "Launchpad",
		Version: "1",
		ChainID: 31337,
		Factory: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}
	relayerAddr = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	creds       = Credentials{Key: "k1", Secret: "s1", Passphrase: "p1"}
)

func whole(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.WAD)
}

// startServer runs the real HTTP stack over an in-memory ledger.
func startServer(t *testing.T) (*httptest.Server, *memory.Ledger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := memory.NewLedger()
	nonces := nonce.NewRegistry(l)
	exec := relay.NewExecutor(l, nonces, authz.New(),
		launch.NewGate(common.HexToAddress("0x9001"), common.HexToAddress("0xfee0")),
		relay.Config{
			DomainName:    testDomain.Name,
			DomainVersion: testDomain.Version,
			ChainID:       big.NewInt(testDomain.ChainID),
			Factory:       testDomain.Factory,
			FeeRecipient:  common.HexToAddress("0xfee0"),
			Template: ledger.Template{
				Curve:       domain.CurveParams{BasePrice: big.NewInt(100_000_000_000), Slope: big.NewInt(100_000)},
				Fees:        domain.FeeSchedule{TradingFeeBps: 30, ListingFeeBps: 100, CreationFee: big.NewInt(0)},
				SaleAmount:  whole(800_000_000),
				MaxSupply:   whole(1_000_000_000),
				FundingGoal: whole(50),
			},
		}, logger)

	srv := server.NewServer(server.Config{
		MaxSkew:  time.Minute,
		Relayers: []middleware.Relayer{{Address: relayerAddr, Auth: creds}},
	}, server.Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		Markets: handler.NewMarketHandler(service.NewMarketService(l, nonces, nil, nil, logger), logger),
		Relay:   handler.NewRelayHandler(exec, logger),
		Admin:   handler.NewAdminHandler(service.NewCustodyService(l, nil, logger), exec, nil, nil, logger),
	}, server.Deps{}, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, l
}

func fund(t *testing.T, l *memory.Ledger, owner common.Address, amount *big.Int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.Atomic(ctx, func(tx domain.LedgerTx) error {
		if err := tx.CreditNative(ctx, owner, amount); err != nil {
			return err
		}
		return tx.SetAllowance(ctx, owner, amount)
	}))
}

func TestClient_CreateBuySell(t *testing.T) {
	ts, l := startServer(t)
	ctx := context.Background()

	signer, err := LoadSigner(KeySource{RawPrivateKey: "0x" + buyerKey})
	require.NoError(t, err)
	fund(t, l, signer.Address(), whole(10))

	c := New(Config{BaseURL: ts.URL + "/", Relayer: relayerAddr, Credentials: creds, Domain: testDomain})

	n, err := c.Nonce(ctx, signer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	res, err := c.Create(ctx, signer, CreateParams{Name: "Otter", Symbol: "OTR", TokenID: big.NewInt(3)})
	require.NoError(t, err)
	market := c.MarketAddress(signer.Address(), big.NewInt(3))
	assert.Equal(t, market.Hex(), res.Market.Address)
	assert.Equal(t, domain.StageEmitted, res.Stage)

	res, err = c.Buy(ctx, signer, market, common.Address{}, whole(1), nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, signer.Address().Hex(), res.Events[0].Recipient)

	res, err = c.Sell(ctx, signer, market, common.Address{}, whole(500), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EventSell, res.Events[0].Kind)

	n, err = c.Nonce(ctx, signer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestClient_ErrorsUnwrapToDomain(t *testing.T) {
	ts, l := startServer(t)
	ctx := context.Background()
	signer, err := crypto.NewIntentSigner(buyerKey)
	require.NoError(t, err)
	fund(t, l, signer.Address(), whole(10))

	c := New(Config{BaseURL: ts.URL, Relayer: relayerAddr, Credentials: creds, Domain: testDomain})
	_, err = c.Create(ctx, signer, CreateParams{Name: "Otter", Symbol: "OTR", TokenID: big.NewInt(3)})
	require.NoError(t, err)
	market := c.MarketAddress(signer.Address(), big.NewInt(3))

	body, err := c.SignBuy(signer, market, BuyIntent{
		Buyer:        signer.Address(),
		Recipient:    signer.Address(),
		NativeAmount: whole(1),
		Nonce:        1,
		Deadline:     uint64(time.Now().Add(time.Minute).Unix()),
		Relayer:      relayerAddr,
	}, nil)
	require.NoError(t, err)

	got, err := c.Verify(ctx, domain.IntentBuy, body)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)

	_, err = c.SubmitBuy(ctx, body)
	require.NoError(t, err)
	_, err = c.SubmitBuy(ctx, body)
	assert.ErrorIs(t, err, domain.ErrInvalidNonce)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	_, err = c.Buy(ctx, signer, market, common.Address{}, whole(1), whole(1_000_000_000))
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	wrongCreds := New(Config{BaseURL: ts.URL, Relayer: relayerAddr, Credentials: Credentials{Key: "k1", Secret: "nope", Passphrase: "p1"}, Domain: testDomain})
	_, err = wrongCreds.SubmitBuy(ctx, body)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLoadSigner_Keystore(t *testing.T) {
	key, err := crypto.NewIntentSigner(buyerKey)
	require.NoError(t, err)

	raw, err := crypto.LoadKey(KeySource{RawPrivateKey: buyerKey})
	require.NoError(t, err)
	blob, err := crypto.SealKey(raw, "hunter2", 1_000)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	s, err := LoadSigner(KeySource{KeystorePath: path, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, key.Address(), s.Address())

	_, err = LoadSigner(KeySource{KeystorePath: path, Password: "wrong"})
	assert.Error(t, err)
}
