package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/tapthat/config"
	"github.com/layer-3/tapthat/contracts"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"github.com/stretchr/testify/require"
)

const (
	testChainID    uint64 = 84532
	testRelayerKey        = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

var (
	testExecutor       = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testConfiguration  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	testProtocol       = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	testPaymentTerm    = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")
	testAaveRebalancer = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	testBridgeExt      = common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707")
)

func testDeployments() config.Deployments {
	return config.Deployments{
		testChainID: {
			RPCURL: "https://sepolia.base.org",
			Contracts: config.Contracts{
				Executor:         testExecutor.Hex(),
				Configuration:    testConfiguration.Hex(),
				Protocol:         testProtocol.Hex(),
				PaymentTerminal:  testPaymentTerm.Hex(),
				AaveRebalancer:   testAaveRebalancer.Hex(),
				BridgeETHViaWETH: testBridgeExt.Hex(),
			},
		},
		config.ChainHederaTestnet: {RPCURL: "https://testnet.hashio.io/api"},
	}
}

type fakeChain struct {
	mu sync.Mutex

	configuration []byte
	balance       *big.Int
	gasPrice      *big.Int
	transactErr   error
	relayer       common.Address

	txs    []ports.TxRequest
	closed bool
}

func newFakeChain(t *testing.T, cfg core.ActionConfiguration) *fakeChain {
	data, err := contracts.PackConfiguration(cfg)
	require.NoError(t, err)
	return &fakeChain{
		configuration: data,
		balance:       new(big.Int),
		gasPrice:      big.NewInt(1_000_000_000),
		relayer:       crypto.PubkeyToAddress(mustKey(t).PublicKey),
	}
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(testRelayerKey)
	require.NoError(t, err)
	return key
}

func (c *fakeChain) ChainID() uint64 { return testChainID }

func (c *fakeChain) RelayAddress() common.Address { return c.relayer }

func (c *fakeChain) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if to != testConfiguration {
		return nil, errors.New("unexpected call target")
	}
	return c.configuration, nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) Transact(ctx context.Context, tx ports.TxRequest) (*ports.TxReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transactErr != nil {
		return nil, c.transactErr
	}
	c.txs = append(c.txs, tx)
	return &ports.TxReceipt{
		TxHash:      common.BigToHash(big.NewInt(int64(len(c.txs)))),
		BlockNumber: 1000 + uint64(len(c.txs)),
	}, nil
}

func (c *fakeChain) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChain) sent() []ports.TxRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ports.TxRequest(nil), c.txs...)
}

// fakeDialer hands out one chain and records every dial.
type fakeDialer struct {
	chain *fakeChain
	dials int
	keys  []string
}

func (d *fakeDialer) dial(ctx context.Context, chainID uint64, rpcURL, relayKey string) (ports.Chain, error) {
	d.dials++
	d.keys = append(d.keys, relayKey)
	return d.chain, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	users    []string
	payloads []any
}

func (n *fakeNotifier) Send(ctx context.Context, userAddress string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userAddress)
	n.payloads = append(n.payloads, payload)
	return n.err
}

type recordingEvents struct {
	mu        sync.Mutex
	requested []string
	completed []string
}

func (e *recordingEvents) PublishBridgeRequested(ctx context.Context, req *core.BridgeRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requested = append(e.requested, req.RequestID)
	return nil
}

func (e *recordingEvents) PublishBridgeCompleted(ctx context.Context, requestID, txHash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, requestID)
	return nil
}

type fakeBridger struct {
	outcome *ports.BridgeOutcome
	err     error
	orders  []ports.BridgeOrder
}

func (b *fakeBridger) Bridge(ctx context.Context, order ports.BridgeOrder) (*ports.BridgeOutcome, error) {
	b.orders = append(b.orders, order)
	if b.err != nil {
		return nil, b.err
	}
	return b.outcome, nil
}
