// Package action turns semantic action parameters into the (target,
// callData, value) triple a chip owner configures on-chain.
package action

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/tapthat/core"
)

const (
	defaultMinGasLimitOP   = 200000
	defaultMinGasLimitBase = 200000
)

// Call is an encoded action ready to be stored as a configuration.
type Call struct {
	Target   common.Address
	CallData []byte
	Value    *big.Int
}

// Action is one of the kinds declared in this package. The set is closed.
type Action interface {
	TemplateID() string
	isAction()
}

// ERC20Transfer pulls Amount of Token from From to To via transferFrom.
type ERC20Transfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// UniswapV2Swap swaps through a Uniswap V2 compatible router.
type UniswapV2Swap struct {
	Router       common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
}

// AaveRebalance moves an Aave position to a target health factor using a
// flash loan.
type AaveRebalance struct {
	Rebalancer         common.Address
	Owner              common.Address
	CollateralAsset    common.Address
	DebtAsset          common.Address
	TargetHealthFactor *big.Int
	MaxSlippage        *big.Int
}

// BridgeETHViaWETH unwraps the owner's WETH and bridges it to both L2s.
// Zero gas limits fall back to 200000.
type BridgeETHViaWETH struct {
	Extension       common.Address
	Owner           common.Address
	MinGasLimitOP   uint32
	MinGasLimitBase uint32
}

// Bridge moves ETH across chains after approval on a second device. It
// encodes to the bridge sentinel and is never executed directly.
type Bridge struct {
	BridgeParams
}

// Custom passes a caller-built call through unchanged.
type Custom struct {
	Target   common.Address
	CallData []byte
	Value    *big.Int
}

func (ERC20Transfer) isAction()    {}
func (UniswapV2Swap) isAction()    {}
func (AaveRebalance) isAction()    {}
func (BridgeETHViaWETH) isAction() {}
func (Bridge) isAction()           {}
func (Custom) isAction()           {}

func (ERC20Transfer) TemplateID() string    { return "erc20-transfer" }
func (UniswapV2Swap) TemplateID() string    { return "uniswap-swap" }
func (AaveRebalance) TemplateID() string    { return "aave-rebalance" }
func (BridgeETHViaWETH) TemplateID() string { return "bridge-eth-sepolia-to-l2" }
func (Bridge) TemplateID() string           { return "avail-bridge" }
func (Custom) TemplateID() string           { return "custom" }

// Encode builds the call for a.
func Encode(a Action) (Call, error) {
	switch a := a.(type) {
	case ERC20Transfer:
		data, err := erc20.Pack("transferFrom", a.From, a.To, amountOrZero(a.Amount))
		if err != nil {
			return Call{}, fmt.Errorf("failed to encode transferFrom: %w", err)
		}
		return Call{Target: a.Token, CallData: data, Value: new(big.Int)}, nil

	case UniswapV2Swap:
		path := a.Path
		if path == nil {
			path = []common.Address{}
		}
		data, err := uniswapV2.Pack("swapExactTokensForTokens",
			amountOrZero(a.AmountIn), amountOrZero(a.AmountOutMin), path, a.To, amountOrZero(a.Deadline))
		if err != nil {
			return Call{}, fmt.Errorf("failed to encode swapExactTokensForTokens: %w", err)
		}
		return Call{Target: a.Router, CallData: data, Value: new(big.Int)}, nil

	case AaveRebalance:
		config := struct {
			CollateralAsset    common.Address
			DebtAsset          common.Address
			TargetHealthFactor *big.Int
			MaxSlippage        *big.Int
		}{a.CollateralAsset, a.DebtAsset, amountOrZero(a.TargetHealthFactor), amountOrZero(a.MaxSlippage)}
		data, err := aaveRebalancer.Pack("executeRebalance", a.Owner, config)
		if err != nil {
			return Call{}, fmt.Errorf("failed to encode executeRebalance: %w", err)
		}
		return Call{Target: a.Rebalancer, CallData: data, Value: new(big.Int)}, nil

	case BridgeETHViaWETH:
		op, base := a.MinGasLimitOP, a.MinGasLimitBase
		if op == 0 {
			op = defaultMinGasLimitOP
		}
		if base == 0 {
			base = defaultMinGasLimitBase
		}
		data, err := bridgeViaWETH.Pack("unwrapAndBridgeDual", a.Owner, op, base)
		if err != nil {
			return Call{}, fmt.Errorf("failed to encode unwrapAndBridgeDual: %w", err)
		}
		return Call{Target: a.Extension, CallData: data, Value: new(big.Int)}, nil

	case Bridge:
		data, err := encodeBridge(a.BridgeParams)
		if err != nil {
			return Call{}, fmt.Errorf("failed to encode bridgeETH: %w", err)
		}
		return Call{Target: core.BridgeSentinel, CallData: data, Value: new(big.Int)}, nil

	case Custom:
		return Call{
			Target:   a.Target,
			CallData: append([]byte(nil), a.CallData...),
			Value:    amountOrZero(a.Value),
		}, nil

	default:
		return Call{}, fmt.Errorf("unknown action %T", a)
	}
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
