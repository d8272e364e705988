package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/tapthat/core"
)

// BridgeOrder asks an external bridging provider to move Amount of Token to
// DestChain, funded from SourceChains.
type BridgeOrder struct {
	Token        common.Address
	Amount       *big.Int
	DestChain    uint64
	SourceChains []uint64
}

type BridgeOutcome struct {
	Success bool
	TxHash  string
	Error   string
}

// Bridger runs a cross-chain transfer on the approving device.
type Bridger interface {
	Bridge(ctx context.Context, order BridgeOrder) (*BridgeOutcome, error)
}

// BridgeRequestSource is how the approving device reaches the relay's
// bridge request records.
type BridgeRequestSource interface {
	GetBridgeRequest(ctx context.Context, requestID string) (*core.BridgeRequest, error)
	CompleteBridgeRequest(ctx context.Context, requestID, txHash string) error
}
