package action

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABI = `[
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable",
	 "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const uniswapV2RouterABI = `[
	{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const aaveRebalancerABI = `[
	{"type":"function","name":"executeRebalance","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"owner","type":"address"},
		{"name":"config","type":"tuple","components":[
			{"name":"collateralAsset","type":"address"},
			{"name":"debtAsset","type":"address"},
			{"name":"targetHealthFactor","type":"uint256"},
			{"name":"maxSlippage","type":"uint256"}]}],
	 "outputs":[]}
]`

const bridgeViaWETHABI = `[
	{"type":"function","name":"unwrapAndBridgeDual","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"owner","type":"address"},
		{"name":"minGasLimitOP","type":"uint32"},
		{"name":"minGasLimitBase","type":"uint32"}],
	 "outputs":[]}
]`

var (
	erc20          = mustParseABI(erc20ABI)
	uniswapV2      = mustParseABI(uniswapV2RouterABI)
	aaveRebalancer = mustParseABI(aaveRebalancerABI)
	bridgeViaWETH  = mustParseABI(bridgeViaWETHABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
