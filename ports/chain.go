package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is a transaction from the relay account. A zero GasLimit lets
// the provider estimate.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// TxReceipt is a mined, successful relay transaction.
type TxReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// Chain is the relay's view of one EVM network.
type Chain interface {
	ChainID() uint64
	RelayAddress() common.Address
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Transact signs and sends the transaction, then blocks until it is mined.
	// A reverted transaction is an error.
	Transact(ctx context.Context, tx TxRequest) (*TxReceipt, error)
	Close()
}

// ChainDialer opens a Chain for a chain id using the relay key.
type ChainDialer func(ctx context.Context, chainID uint64, rpcURL string, relayKey string) (Chain, error)
