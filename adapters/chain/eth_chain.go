package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/internal/eth"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

// EthChain sends relay transactions over JSON-RPC with a local key
type EthChain struct {
	client  *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	logger  *zap.Logger
}

var _ ports.Chain = (*EthChain)(nil)

// Dialer returns a ports.ChainDialer that opens EthChain instances
func Dialer(logger *zap.Logger) ports.ChainDialer {
	return func(ctx context.Context, chainID uint64, rpcURL string, relayKey string) (ports.Chain, error) {
		return Dial(ctx, chainID, rpcURL, relayKey, logger)
	}
}

// Dial connects to rpcURL and checks the node serves chainID
func Dial(ctx context.Context, chainID uint64, rpcURL string, relayKey string, logger *zap.Logger) (*EthChain, error) {
	key, err := eth.ParsePrivateKey(relayKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
	}

	remoteID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if remoteID.Uint64() != chainID {
		client.Close()
		return nil, core.ConfigurationError("rpc for chain %d serves chain %s", chainID, remoteID)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	logger.Info("connected relay chain",
		zap.Uint64("chainId", chainID),
		zap.String("relayer", from.Hex()),
	)

	return &EthChain{
		client:  client,
		chainID: remoteID,
		key:     key,
		from:    from,
		logger:  logger.With(zap.Uint64("chainId", chainID)),
	}, nil
}

func (c *EthChain) ChainID() uint64 {
	return c.chainID.Uint64()
}

func (c *EthChain) RelayAddress() common.Address {
	return c.from
}

func (c *EthChain) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", to.Hex(), err)
	}
	return out, nil
}

func (c *EthChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (c *EthChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// Transact signs, sends and waits for one confirmation
func (c *EthChain) Transact(ctx context.Context, req ports.TxRequest) (*ports.TxReceipt, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &req.To, Value: value, Data: req.Data})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx, err := c.buildTx(ctx, nonce, gasLimit, req.To, value, req.Data)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	c.logger.Info("sending relay transaction",
		zap.String("to", req.To.Hex()),
		zap.String("value", value.String()),
		zap.Uint64("gasLimit", gasLimit),
		zap.Uint64("nonce", nonce),
		zap.String("txHash", signed.Hash().Hex()),
	)

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for transaction receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		c.logger.Error("relay transaction reverted",
			zap.String("txHash", receipt.TxHash.Hex()),
			zap.Uint64("gasUsed", receipt.GasUsed),
		)
		return nil, fmt.Errorf("transaction %s reverted", receipt.TxHash.Hex())
	}

	c.logger.Info("relay transaction mined",
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.Uint64("gasUsed", receipt.GasUsed),
		zap.Uint64("blockNumber", receipt.BlockNumber.Uint64()),
	)

	return &ports.TxReceipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
}

// buildTx prefers a dynamic fee transaction and falls back to legacy pricing
// on networks without a base fee.
func (c *EthChain) buildTx(ctx context.Context, nonce, gasLimit uint64, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if header.BaseFee == nil {
		gasPrice, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		}), nil
	}

	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	}), nil
}

func (c *EthChain) Close() {
	c.client.Close()
}
