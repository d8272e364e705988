package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/tapthat/core"
)

// Domain names shared by the chip-side signer and the verifiers. Changing any
// of these, or the field lists below, silently breaks signature recovery.
const (
	ProtocolDomainName        = "TapThatXProtocol"
	RegistryDomainName        = "TapThatXRegistry"
	PaymentTerminalDomainName = "TapThatXPaymentTerminal"
	DomainVersion             = "1"

	CallAuthorizationPrimaryType    = "CallAuthorization"
	ChipRegistrationPrimaryType     = "ChipRegistration"
	PaymentAuthorizationPrimaryType = "PaymentAuthorization"
)

// Field is one named member of an EIP-712 struct type.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Domain is an EIP-712 domain without chainId.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	VerifyingContract common.Address `json:"verifyingContract"`
}

// TypedData is a complete structure ready to be signed or recovered.
type TypedData struct {
	Domain      Domain             `json:"domain"`
	Types       map[string][]Field `json:"types"`
	PrimaryType string             `json:"primaryType"`
	Message     map[string]any     `json:"message"`
}

var (
	domainFields = []Field{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "verifyingContract", Type: "address"},
	}

	CallAuthorizationFields = []Field{
		{Name: "owner", Type: "address"},
		{Name: "target", Type: "address"},
		{Name: "callData", Type: "bytes"},
		{Name: "value", Type: "uint256"},
		{Name: "timestamp", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	}

	ChipRegistrationFields = []Field{
		{Name: "owner", Type: "address"},
		{Name: "chipAddress", Type: "address"},
	}

	PaymentAuthorizationFields = []Field{
		{Name: "payer", Type: "address"},
		{Name: "payerChip", Type: "address"},
		{Name: "payee", Type: "address"},
		{Name: "payeeChip", Type: "address"},
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "timestamp", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	}
)

func ProtocolDomain(verifyingContract common.Address) Domain {
	return Domain{Name: ProtocolDomainName, Version: DomainVersion, VerifyingContract: verifyingContract}
}

func RegistryDomain(verifyingContract common.Address) Domain {
	return Domain{Name: RegistryDomainName, Version: DomainVersion, VerifyingContract: verifyingContract}
}

func PaymentTerminalDomain(verifyingContract common.Address) Domain {
	return Domain{Name: PaymentTerminalDomainName, Version: DomainVersion, VerifyingContract: verifyingContract}
}

// CallAuthorizationTypedData builds the structure a chip signs to authorize
// one execution of its owner's configured action.
func CallAuthorizationTypedData(domain Domain, auth core.CallAuthorization) TypedData {
	return TypedData{
		Domain:      domain,
		Types:       map[string][]Field{CallAuthorizationPrimaryType: CallAuthorizationFields},
		PrimaryType: CallAuthorizationPrimaryType,
		Message: map[string]any{
			"owner":     auth.Owner.Hex(),
			"target":    auth.Target.Hex(),
			"callData":  nonNilBytes(auth.CallData),
			"value":     bigOrZero(auth.Value),
			"timestamp": bigOrZero(auth.Timestamp),
			"nonce":     append([]byte(nil), auth.Nonce[:]...),
		},
	}
}

// ChipRegistrationTypedData builds the structure a chip signs to bind itself
// to an owner.
func ChipRegistrationTypedData(domain Domain, reg core.ChipRegistration) TypedData {
	return TypedData{
		Domain:      domain,
		Types:       map[string][]Field{ChipRegistrationPrimaryType: ChipRegistrationFields},
		PrimaryType: ChipRegistrationPrimaryType,
		Message: map[string]any{
			"owner":       reg.Owner.Hex(),
			"chipAddress": reg.ChipAddress.Hex(),
		},
	}
}

// PaymentAuthorizationTypedData builds the structure a payer's chip signs for
// the payment terminal.
func PaymentAuthorizationTypedData(domain Domain, auth core.PaymentAuthorization) TypedData {
	return TypedData{
		Domain:      domain,
		Types:       map[string][]Field{PaymentAuthorizationPrimaryType: PaymentAuthorizationFields},
		PrimaryType: PaymentAuthorizationPrimaryType,
		Message: map[string]any{
			"payer":     auth.Payer.Hex(),
			"payerChip": auth.PayerChip.Hex(),
			"payee":     auth.Payee.Hex(),
			"payeeChip": auth.PayeeChip.Hex(),
			"token":     auth.Token.Hex(),
			"amount":    bigOrZero(auth.Amount),
			"timestamp": bigOrZero(auth.Timestamp),
			"nonce":     append([]byte(nil), auth.Nonce[:]...),
		},
	}
}

// Hash returns keccak256("\x19\x01" ‖ domainSeparator ‖ structHash).
func (td TypedData) Hash() ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       make(apitypes.Types, len(td.Types)+1),
		PrimaryType: td.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              td.Domain.Name,
			Version:           td.Domain.Version,
			VerifyingContract: td.Domain.VerifyingContract.Hex(),
		},
		Message: td.Message,
	}
	for name, fields := range td.Types {
		typed.Types[name] = toAPITypes(fields)
	}
	typed.Types["EIP712Domain"] = toAPITypes(domainFields)

	domainSeparator, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := typed.HashStruct(typed.PrimaryType, typed.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", typed.PrimaryType, err)
	}

	raw := make([]byte, 0, 2+len(domainSeparator)+len(structHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

func toAPITypes(fields []Field) []apitypes.Type {
	out := make([]apitypes.Type, len(fields))
	for i, f := range fields {
		out[i] = apitypes.Type{Name: f.Name, Type: f.Type}
	}
	return out
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}
