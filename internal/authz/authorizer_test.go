package authz

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/crypto"
	"github.com/alanyoungcy/launchpad/internal/domain"
)

type mockNonces struct {
	mock.Mock
}

func (m *mockNonces) CurrentNonce(ctx context.Context, signer common.Address) (uint64, error) {
	args := m.Called(ctx, signer)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockNonces) ConsumeNonce(ctx context.Context, signer common.Address, expected uint64) error {
	return m.Called(ctx, signer, expected).Error(0)
}

var _ domain.NonceStore = (*mockNonces)(nil)

var (
	relayer = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	now     = time.Unix(1_800_000_000, 0)
	market  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func signingDomain() domain.SigningDomain {
	return domain.SigningDomain{Name: "Launchpad", Version: "1", ChainID: big.NewInt(31337), VerifyingContract: market}
}

func TestVerify(t *testing.T) {
	signer, err := crypto.NewIntentSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	other, err := crypto.NewIntentSigner("8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63")
	require.NoError(t, err)

	base := domain.BuyIntent{
		Buyer:        signer.Address(),
		Recipient:    signer.Address(),
		NativeAmount: big.NewInt(1_000),
		Nonce:        2,
		Deadline:     uint64(now.Add(time.Hour).Unix()),
		Relayer:      relayer,
	}

	tests := []struct {
		name      string
		intent    domain.BuyIntent
		signWith  *crypto.IntentSigner
		submitter common.Address
		domain    func(d domain.SigningDomain) domain.SigningDomain
		nonce     uint64
		wantErr   error
	}{
		{name: "valid", intent: base, signWith: signer, submitter: relayer, nonce: 2},
		{
			name:      "deadline equal to now is accepted",
			intent:    func() domain.BuyIntent { b := base; b.Deadline = uint64(now.Unix()); return b }(),
			signWith:  signer,
			submitter: relayer,
			nonce:     2,
		},
		{
			name:      "expired even with bad signature and nonce",
			intent:    func() domain.BuyIntent { b := base; b.Deadline = uint64(now.Add(-time.Second).Unix()); return b }(),
			signWith:  other,
			submitter: common.HexToAddress("0x01"),
			nonce:     9,
			wantErr:   domain.ErrExpired,
		},
		{name: "relayer mismatch", intent: base, signWith: signer, submitter: common.HexToAddress("0x01"), nonce: 2, wantErr: domain.ErrRelayerMismatch},
		{name: "wrong signer", intent: base, signWith: other, submitter: relayer, nonce: 2, wantErr: domain.ErrSignatureInvalid},
		{
			name:      "other deployment",
			intent:    base,
			signWith:  signer,
			submitter: relayer,
			domain: func(d domain.SigningDomain) domain.SigningDomain {
				d.VerifyingContract = common.HexToAddress("0x02")
				return d
			},
			nonce:   2,
			wantErr: domain.ErrSignatureInvalid,
		},
		{name: "stale nonce", intent: base, signWith: signer, submitter: relayer, nonce: 3, wantErr: domain.ErrInvalidNonce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signDomain := signingDomain()
			if tt.domain != nil {
				signDomain = tt.domain(signDomain)
			}
			sig, err := tt.signWith.Sign(signDomain, tt.intent)
			require.NoError(t, err)

			nonces := &mockNonces{}
			nonces.On("CurrentNonce", mock.Anything, tt.intent.Buyer).Return(tt.nonce, nil).Maybe()

			a := New(WithClock(func() time.Time { return now }))
			got, err := a.Verify(context.Background(), nonces, tt.intent, sig, signingDomain(), tt.submitter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, signer.Address(), got)
			nonces.AssertNotCalled(t, "ConsumeNonce", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	signer, err := crypto.NewIntentSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	intent := domain.SellIntent{
		Seller:      signer.Address(),
		Recipient:   signer.Address(),
		TokenAmount: big.NewInt(5),
		Deadline:    uint64(now.Add(time.Minute).Unix()),
		Relayer:     relayer,
	}
	sig, err := signer.Sign(signingDomain(), intent)
	require.NoError(t, err)

	nonces := &mockNonces{}
	nonces.On("CurrentNonce", mock.Anything, signer.Address()).Return(uint64(0), nil)

	a := New(WithClock(func() time.Time { return now }))
	for i := 0; i < 3; i++ {
		_, err := a.Verify(context.Background(), nonces, intent, sig, signingDomain(), relayer)
		require.NoError(t, err)
	}
	nonces.AssertNumberOfCalls(t, "CurrentNonce", 3)
}

func TestRecover_Malformed(t *testing.T) {
	a := New()
	_, err := a.Recover(domain.BuyIntent{NativeAmount: big.NewInt(1)}, []byte{1, 2, 3}, signingDomain())
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
}
