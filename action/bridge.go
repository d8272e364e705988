package action

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/tapthat/core"
)

// bridgeArgs is the single schema for bridgeETH callData. Encode and
// ParseBridgeCallData both go through it.
var bridgeArgs = func() abi.Arguments {
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "sourceChainId", Type: uint256},
		{Name: "destChainId", Type: uint256},
		{Name: "amount", Type: uint256},
	}
}()

var bridgeSelector = crypto.Keccak256([]byte("bridgeETH(uint256,uint256,uint256)"))[:4]

// BridgeParams are the semantic parameters of a cross-chain ETH move.
type BridgeParams struct {
	SourceChainID uint64
	DestChainID   uint64
	Amount        *big.Int
}

// IsBridgeAction reports whether target is the bridge sentinel. The zero
// address means "no action configured" and is never a bridge action.
func IsBridgeAction(target common.Address) bool {
	return target == core.BridgeSentinel
}

func encodeBridge(p BridgeParams) ([]byte, error) {
	packed, err := bridgeArgs.Pack(
		new(big.Int).SetUint64(p.SourceChainID),
		new(big.Int).SetUint64(p.DestChainID),
		amountOrZero(p.Amount),
	)
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), bridgeSelector...), packed...), nil
}

// ParseBridgeCallData decodes callData produced for a Bridge action. It
// returns false for short or malformed input, a foreign selector, or chain
// ids that do not fit in 64 bits.
func ParseBridgeCallData(callData []byte) (*BridgeParams, bool) {
	if len(callData) < len(bridgeSelector)+32*len(bridgeArgs) {
		return nil, false
	}
	if !bytes.Equal(callData[:len(bridgeSelector)], bridgeSelector) {
		return nil, false
	}

	values, err := bridgeArgs.Unpack(callData[len(bridgeSelector):])
	if err != nil || len(values) != len(bridgeArgs) {
		return nil, false
	}

	source, ok1 := values[0].(*big.Int)
	dest, ok2 := values[1].(*big.Int)
	amount, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !source.IsUint64() || !dest.IsUint64() {
		return nil, false
	}

	return &BridgeParams{
		SourceChainID: source.Uint64(),
		DestChainID:   dest.Uint64(),
		Amount:        amount,
	}, true
}
