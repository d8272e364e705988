package core

import (
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

// BridgeSentinel is the configured target that means "create an approval
// flow instead of executing". It is distinct from the zero address, which
// means no action is configured.
var BridgeSentinel = common.HexToAddress("0x0000000000000000000000000000000000000001")

var hash32Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsHash32 reports whether s is "0x" followed by exactly 64 hex characters.
// Request ids, transaction hashes and nonces all share this shape.
func IsHash32(s string) bool {
	return hash32Pattern.MatchString(s)
}

// CallAuthorization is what a chip signs to let the relay run its owner's
// configured action once.
type CallAuthorization struct {
	Owner     common.Address
	Target    common.Address
	CallData  []byte
	Value     *big.Int
	Timestamp *big.Int
	Nonce     [32]byte
}

// PaymentAuthorization is what a payer's chip signs for the payment terminal.
type PaymentAuthorization struct {
	Payer     common.Address
	PayerChip common.Address
	Payee     common.Address
	PayeeChip common.Address
	Token     common.Address
	Amount    *big.Int
	Timestamp *big.Int
	Nonce     [32]byte
}

// ChipRegistration binds a chip to its owner in the registry.
type ChipRegistration struct {
	Owner       common.Address
	ChipAddress common.Address
}

// ActionConfiguration is the action an owner stored on-chain for one chip.
type ActionConfiguration struct {
	TargetContract common.Address
	StaticCallData []byte
	Value          *big.Int
	Description    string
	IsActive       bool
}

// IsEmpty reports whether no action has been configured.
func (c *ActionConfiguration) IsEmpty() bool {
	return c.TargetContract == (common.Address{})
}
