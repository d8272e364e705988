// Package contracts holds the ABI fragments the relay calls on the
// executor, configuration and payment terminal contracts.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/tapthat/core"
)

const ExecutorABI = `[
	{"type":"function","name":"executeTap","stateMutability":"payable",
	 "inputs":[
		{"name":"owner","type":"address"},
		{"name":"chip","type":"address"},
		{"name":"chipSignature","type":"bytes"},
		{"name":"timestamp","type":"uint256"},
		{"name":"nonce","type":"bytes32"}],
	 "outputs":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}
]`

const ConfigurationABI = `[
	{"type":"function","name":"getConfiguration","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"chip","type":"address"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"targetContract","type":"address"},
		{"name":"staticCallData","type":"bytes"},
		{"name":"value","type":"uint256"},
		{"name":"description","type":"string"},
		{"name":"isActive","type":"bool"}]}]}
]`

const PaymentTerminalABI = `[
	{"type":"function","name":"executePayment","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"auth","type":"tuple","components":[
			{"name":"payer","type":"address"},
			{"name":"payerChip","type":"address"},
			{"name":"payee","type":"address"},
			{"name":"payeeChip","type":"address"},
			{"name":"token","type":"address"},
			{"name":"amount","type":"uint256"},
			{"name":"timestamp","type":"uint256"},
			{"name":"nonce","type":"bytes32"}]},
		{"name":"payerSignature","type":"bytes"}],
	 "outputs":[]}
]`

var (
	Executor        = mustParse(ExecutorABI)
	Configuration   = mustParse(ConfigurationABI)
	PaymentTerminal = mustParse(PaymentTerminalABI)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

type configurationTuple struct {
	TargetContract common.Address
	StaticCallData []byte
	Value          *big.Int
	Description    string
	IsActive       bool
}

type paymentTuple struct {
	Payer     common.Address
	PayerChip common.Address
	Payee     common.Address
	PayeeChip common.Address
	Token     common.Address
	Amount    *big.Int
	Timestamp *big.Int
	Nonce     [32]byte
}

func PackGetConfiguration(owner, chip common.Address) ([]byte, error) {
	return Configuration.Pack("getConfiguration", owner, chip)
}

// UnpackConfiguration decodes the return data of getConfiguration.
func UnpackConfiguration(data []byte) (*core.ActionConfiguration, error) {
	out, err := Configuration.Unpack("getConfiguration", data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack configuration: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected configuration output length %d", len(out))
	}

	tuple := *abi.ConvertType(out[0], new(configurationTuple)).(*configurationTuple)
	value := tuple.Value
	if value == nil {
		value = new(big.Int)
	}
	return &core.ActionConfiguration{
		TargetContract: tuple.TargetContract,
		StaticCallData: tuple.StaticCallData,
		Value:          value,
		Description:    tuple.Description,
		IsActive:       tuple.IsActive,
	}, nil
}

// PackConfiguration encodes cfg as getConfiguration return data. Chain fakes
// use it to answer configuration reads.
func PackConfiguration(cfg core.ActionConfiguration) ([]byte, error) {
	value := cfg.Value
	if value == nil {
		value = new(big.Int)
	}
	return Configuration.Methods["getConfiguration"].Outputs.Pack(configurationTuple{
		TargetContract: cfg.TargetContract,
		StaticCallData: cfg.StaticCallData,
		Value:          value,
		Description:    cfg.Description,
		IsActive:       cfg.IsActive,
	})
}

func PackExecuteTap(owner, chip common.Address, chipSignature []byte, timestamp *big.Int, nonce [32]byte) ([]byte, error) {
	return Executor.Pack("executeTap", owner, chip, chipSignature, timestamp, nonce)
}

func PackExecutePayment(auth core.PaymentAuthorization, payerSignature []byte) ([]byte, error) {
	return PaymentTerminal.Pack("executePayment", paymentTuple{
		Payer:     auth.Payer,
		PayerChip: auth.PayerChip,
		Payee:     auth.Payee,
		PayeeChip: auth.PayeeChip,
		Token:     auth.Token,
		Amount:    auth.Amount,
		Timestamp: auth.Timestamp,
		Nonce:     auth.Nonce,
	}, payerSignature)
}
