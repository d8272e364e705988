package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/tapthat/action"
	"github.com/layer-3/tapthat/adapters/store"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOwner = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type relayFixture struct {
	svc      *RelayService
	chain    *fakeChain
	dialer   *fakeDialer
	store    *store.MemoryStore
	notifier *fakeNotifier
	events   *recordingEvents
}

func newRelayFixture(t *testing.T, cfg core.ActionConfiguration, relayerKey string) *relayFixture {
	t.Helper()

	f := &relayFixture{
		chain:    newFakeChain(t, cfg),
		store:    store.NewMemoryStore(),
		notifier: &fakeNotifier{},
		events:   &recordingEvents{},
	}
	f.dialer = &fakeDialer{chain: f.chain}
	f.svc = NewRelayService(
		RelayConfig{
			Deployments:      testDeployments(),
			RelayerKey:       relayerKey,
			BridgeRequestTTL: time.Hour,
		},
		f.dialer.dial,
		f.store,
		f.notifier,
		f.events,
		zap.NewNop(),
	)
	t.Cleanup(f.svc.Close)
	return f
}

// signedTap has chip sign a CallAuthorization for target and callData the
// way the tapping device does.
func signedTap(t *testing.T, chip *eth.KeySigner, target common.Address, callData []byte) TapRequest {
	t.Helper()

	nonce, err := eth.NewNonce()
	require.NoError(t, err)
	timestamp := big.NewInt(1735689600)

	td := eth.CallAuthorizationTypedData(eth.ProtocolDomain(testProtocol), core.CallAuthorization{
		Owner:     testOwner,
		Target:    target,
		CallData:  callData,
		Value:     new(big.Int),
		Timestamp: timestamp,
		Nonce:     nonce,
	})
	_, sig, err := chip.SignTypedData(context.Background(), td)
	require.NoError(t, err)

	return TapRequest{
		Owner:         testOwner.Hex(),
		Chip:          chip.Address().Hex(),
		ChipSignature: hexutil.Encode(sig),
		Timestamp:     timestamp.String(),
		Nonce:         hexutil.Encode(nonce[:]),
		ChainID:       testChainID,
	}
}

func bridgeConfiguration(t *testing.T, amount *big.Int) core.ActionConfiguration {
	call, err := action.Encode(action.Bridge{BridgeParams: action.BridgeParams{
		SourceChainID: 11155111,
		DestChainID:   84532,
		Amount:        amount,
	}})
	require.NoError(t, err)
	return core.ActionConfiguration{
		TargetContract: call.Target,
		StaticCallData: call.CallData,
		Value:          new(big.Int),
		Description:    "bridge to base",
		IsActive:       true,
	}
}

func TestExecuteTap_BridgeCreatesRequest(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	amount := big.NewInt(1_000_000_000_000_000)
	cfg := bridgeConfiguration(t, amount)
	f := newRelayFixture(t, cfg, testRelayerKey)
	tap := signedTap(t, chip, core.BridgeSentinel, cfg.StaticCallData)

	res, err := f.svc.ExecuteTap(context.Background(), tap)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.RequiresApproval)
	assert.True(t, core.IsHash32(res.RequestID))
	require.NotNil(t, res.Notified)
	assert.True(t, *res.Notified)
	assert.Empty(t, f.chain.sent(), "bridge taps never send a transaction")

	stored, err := f.store.Get(context.Background(), res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, core.BridgeStatusPending, stored.Status)
	assert.Equal(t, core.NormalizeAddress(testOwner.Hex()), stored.UserAddress)
	assert.Equal(t, core.NormalizeAddress(chip.Address().Hex()), stored.ChipAddress)
	assert.Equal(t, uint64(11155111), stored.SourceChain)
	assert.Equal(t, uint64(84532), stored.DestChain)
	assert.Equal(t, amount.String(), stored.Amount)
	assert.Equal(t, hexutil.Encode(cfg.StaticCallData), stored.CallData)
	assert.Equal(t, tap.Nonce, stored.Nonce)
	assert.Equal(t, uint64(1735689600), stored.Timestamp)
	assert.True(t, stored.ExpiresAt.After(stored.CreatedAt))

	require.Len(t, f.notifier.payloads, 1)
	note := f.notifier.payloads[0].(BridgeNotification)
	assert.Equal(t, "/bridge/execute/"+res.RequestID, note.URL)
	assert.Equal(t, "Sepolia", note.SourceChainName)
	assert.Equal(t, "Base Sepolia", note.DestChainName)
	assert.Equal(t, []string{res.RequestID}, f.events.requested)

	verification := VerifyBridgeRequest(stored, testOwner.Hex(), testProtocol)
	assert.True(t, verification.IsValid, verification.Error)
}

func TestExecuteTap_BridgeWithoutSubscription(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	cfg := bridgeConfiguration(t, big.NewInt(5))
	f := newRelayFixture(t, cfg, testRelayerKey)
	f.notifier.err = core.NotFoundError(core.ErrNoSubscription)

	res, err := f.svc.ExecuteTap(context.Background(), signedTap(t, chip, core.BridgeSentinel, cfg.StaticCallData))
	require.NoError(t, err)
	require.NotNil(t, res.Notified)
	assert.False(t, *res.Notified)

	_, err = f.store.Get(context.Background(), res.RequestID)
	assert.NoError(t, err, "the request is kept even when nobody was notified")
}

func TestExecuteTap_RequestIDCollision(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	cfg := bridgeConfiguration(t, big.NewInt(5))
	f := newRelayFixture(t, cfg, testRelayerKey)

	taken := [32]byte{1}
	fresh := [32]byte{2}
	require.NoError(t, f.store.Create(context.Background(), &core.BridgeRequest{
		RequestID: hexutil.Encode(taken[:]),
		Status:    core.BridgeStatusPending,
	}))

	ids := [][32]byte{taken, fresh}
	f.svc.requestID = func() ([32]byte, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	res, err := f.svc.ExecuteTap(context.Background(), signedTap(t, chip, core.BridgeSentinel, cfg.StaticCallData))
	require.NoError(t, err)
	assert.Equal(t, hexutil.Encode(fresh[:]), res.RequestID)
}

func TestExecuteTap_InvalidBridgeCallData(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	cfg := core.ActionConfiguration{
		TargetContract: core.BridgeSentinel,
		StaticCallData: []byte{0xde, 0xad, 0xbe, 0xef},
		IsActive:       true,
	}
	f := newRelayFixture(t, cfg, testRelayerKey)

	_, err = f.svc.ExecuteTap(context.Background(), signedTap(t, chip, core.BridgeSentinel, cfg.StaticCallData))
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
	assert.Equal(t, "Invalid bridge callData", err.Error())
}

func TestExecuteTap_GasPolicy(t *testing.T) {
	tests := []struct {
		name   string
		target common.Address
		want   uint64
	}{
		{name: "aave rebalancer", target: testAaveRebalancer, want: AaveRebalancerGasLimit},
		{name: "bridge extension", target: testBridgeExt, want: BridgeExtensionGasLimit},
		{name: "other target estimates", target: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, err := eth.GenerateKeySigner()
			require.NoError(t, err)

			cfg := core.ActionConfiguration{TargetContract: tt.target, StaticCallData: []byte{0x01}, Value: new(big.Int), IsActive: true}
			f := newRelayFixture(t, cfg, testRelayerKey)

			res, err := f.svc.ExecuteTap(context.Background(), signedTap(t, chip, tt.target, cfg.StaticCallData))
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, "1001", res.BlockNumber)

			sent := f.chain.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.want, sent[0].GasLimit)
			assert.Equal(t, testExecutor, sent[0].To)
		})
	}
}

func TestExecuteTap_Preflight(t *testing.T) {
	value := big.NewInt(1_000_000_000_000_000_000)
	gasPrice := big.NewInt(1_000_000_000)
	need := new(big.Int).Add(value, new(big.Int).Mul(big.NewInt(PreflightGasUnits), gasPrice))

	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	cfg := core.ActionConfiguration{TargetContract: target, StaticCallData: []byte{0x01}, Value: value, IsActive: true}

	t.Run("exact balance passes", func(t *testing.T) {
		chip, err := eth.GenerateKeySigner()
		require.NoError(t, err)
		f := newRelayFixture(t, cfg, testRelayerKey)
		f.chain.gasPrice = gasPrice
		f.chain.balance = new(big.Int).Set(need)

		_, err = f.svc.ExecuteTap(context.Background(), signedTap(t, chip, target, cfg.StaticCallData))
		require.NoError(t, err)

		sent := f.chain.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, 0, sent[0].Value.Cmp(value))
	})

	t.Run("one wei short fails", func(t *testing.T) {
		chip, err := eth.GenerateKeySigner()
		require.NoError(t, err)
		f := newRelayFixture(t, cfg, testRelayerKey)
		f.chain.gasPrice = gasPrice
		f.chain.balance = new(big.Int).Sub(need, big.NewInt(1))

		_, err = f.svc.ExecuteTap(context.Background(), signedTap(t, chip, target, cfg.StaticCallData))
		require.Error(t, err)
		assert.Equal(t, core.KindExecution, core.KindOf(err))
		assert.Contains(t, err.Error(), "Insufficient relayer balance. Need 1.0015 ETH (1 bridge + 0.0015 gas)")

		shortfall := core.ShortfallOf(err)
		require.NotNil(t, shortfall)
		assert.Equal(t, 0, shortfall.Need.Cmp(need))
		assert.Equal(t, 0, shortfall.Value.Cmp(value))
		assert.Empty(t, f.chain.sent())
	})
}

func TestExecuteTap_ValueMismatch(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	cfg := core.ActionConfiguration{TargetContract: target, StaticCallData: []byte{0x01}, Value: big.NewInt(10), IsActive: true}
	f := newRelayFixture(t, cfg, testRelayerKey)

	tap := signedTap(t, chip, target, cfg.StaticCallData)
	tap.Value = "11"
	_, err = f.svc.ExecuteTap(context.Background(), tap)
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
	assert.Empty(t, f.chain.sent())
}

func TestExecuteTap_Rejections(t *testing.T) {
	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	active := core.ActionConfiguration{TargetContract: target, StaticCallData: []byte{0x01}, IsActive: true}

	tests := []struct {
		name     string
		cfg      core.ActionConfiguration
		key      string
		mutate   func(r *TapRequest)
		wantKind core.Kind
		wantMsg  string
		dialed   bool
	}{
		{
			name:     "missing parameters",
			cfg:      active,
			key:      testRelayerKey,
			mutate:   func(r *TapRequest) { r.Nonce = "" },
			wantKind: core.KindValidation,
			wantMsg:  "Missing required parameters",
		},
		{
			name:     "unsupported chain is checked before the key",
			cfg:      active,
			key:      "",
			mutate:   func(r *TapRequest) { r.ChainID = 999 },
			wantKind: core.KindValidation,
			wantMsg:  "Unsupported chain",
		},
		{
			name:     "chain without contracts",
			cfg:      active,
			key:      "",
			mutate:   func(r *TapRequest) { r.ChainID = 296 },
			wantKind: core.KindValidation,
			wantMsg:  "Contracts not deployed on this network",
		},
		{
			name:     "missing relay key",
			cfg:      active,
			key:      "",
			wantKind: core.KindConfiguration,
			wantMsg:  "RELAYER_PRIVATE_KEY environment variable is not set",
		},
		{
			name:     "malformed relay key",
			cfg:      active,
			key:      "0xabc",
			wantKind: core.KindConfiguration,
			wantMsg:  "got 3 characters",
		},
		{
			name:     "no action configured",
			cfg:      core.ActionConfiguration{},
			key:      testRelayerKey,
			wantKind: core.KindValidation,
			wantMsg:  "No action configured",
			dialed:   true,
		},
		{
			name:     "inactive action",
			cfg:      core.ActionConfiguration{TargetContract: target},
			key:      testRelayerKey,
			wantKind: core.KindValidation,
			wantMsg:  "inactive",
			dialed:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip, err := eth.GenerateKeySigner()
			require.NoError(t, err)
			f := newRelayFixture(t, tt.cfg, tt.key)

			tap := signedTap(t, chip, target, []byte{0x01})
			if tt.mutate != nil {
				tt.mutate(&tap)
			}

			_, err = f.svc.ExecuteTap(context.Background(), tap)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, core.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.dialed, f.dialer.dials > 0)
			assert.Empty(t, f.chain.sent())
		})
	}
}

func TestExecuteTap_RevertIsExecutionError(t *testing.T) {
	chip, err := eth.GenerateKeySigner()
	require.NoError(t, err)

	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	cfg := core.ActionConfiguration{TargetContract: target, StaticCallData: []byte{0x01}, IsActive: true}
	f := newRelayFixture(t, cfg, testRelayerKey)
	f.chain.transactErr = errors.New("execution reverted")

	_, err = f.svc.ExecuteTap(context.Background(), signedTap(t, chip, target, cfg.StaticCallData))
	require.Error(t, err)
	assert.Equal(t, core.KindExecution, core.KindOf(err))
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestExecuteTap_ReusesChainRelay(t *testing.T) {
	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	cfg := core.ActionConfiguration{TargetContract: target, StaticCallData: []byte{0x01}, IsActive: true}
	f := newRelayFixture(t, cfg, testRelayerKey)

	for i := 0; i < 3; i++ {
		chip, err := eth.GenerateKeySigner()
		require.NoError(t, err)
		_, err = f.svc.ExecuteTap(context.Background(), signedTap(t, chip, target, cfg.StaticCallData))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.dialer.dials)
	assert.Equal(t, []string{"0x" + testRelayerKey}, f.dialer.keys)
	assert.Len(t, f.chain.sent(), 3)

	f.svc.Close()
	assert.True(t, f.chain.closed)
}

func TestExecutePayment(t *testing.T) {
	f := newRelayFixture(t, core.ActionConfiguration{}, testRelayerKey)

	nonce, err := eth.NewNonce()
	require.NoError(t, err)
	req := PaymentRequest{
		Payer:          testOwner.Hex(),
		PayerChip:      "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		Payee:          "0x90F79bf6EB2c4f870365E785982E1f101E93b906",
		PayeeChip:      "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65",
		Token:          "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:         "2500000",
		Timestamp:      "1735689600",
		Nonce:          hexutil.Encode(nonce[:]),
		PayerSignature: hexutil.Encode(make([]byte, 65)),
		ChainID:        testChainID,
	}

	res, err := f.svc.ExecutePayment(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)

	sent := f.chain.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testPaymentTerm, sent[0].To)
	assert.Equal(t, 0, sent[0].Value.Sign())

	req.ChainID = 296
	_, err = f.svc.ExecutePayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "Payment terminal not deployed on this network", err.Error())

	req.ChainID = testChainID
	req.Token = "usdc"
	_, err = f.svc.ExecutePayment(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}
