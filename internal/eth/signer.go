package eth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/tapthat/core"
)

// ChipSigner is the signing surface of a chip. Hardware implementations block
// until the chip is tapped.
type ChipSigner interface {
	SignTypedData(ctx context.Context, td TypedData) (common.Address, []byte, error)
}

// KeySigner signs typed data with an in-process secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTypedData returns a 65-byte signature with v in {27, 28}, the form
// chips and wallets emit.
func (s *KeySigner) SignTypedData(ctx context.Context, td TypedData) (common.Address, []byte, error) {
	digest, err := td.Hash()
	if err != nil {
		return common.Address{}, nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return s.address, sig, nil
}

// NewNonce returns 32 bytes from the system CSPRNG.
func NewNonce() ([32]byte, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// ParseNonce decodes a "0x" + 64 hex nonce.
func ParseNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	if !core.IsHash32(s) {
		return nonce, fmt.Errorf("nonce must be 0x followed by 64 hex characters")
	}
	copy(nonce[:], common.FromHex(s))
	return nonce, nil
}

// ParseAddress decodes a hex address, rejecting anything that is not one.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q: %w", s, core.ErrInvalidAddress)
	}
	return common.HexToAddress(s), nil
}

// ParseSignature decodes a 0x-prefixed 65-byte signature.
func ParseSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}
	return sig, nil
}
