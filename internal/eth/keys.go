package eth

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/tapthat/core"
)

// NormalizePrivateKey trims the key, adds a missing 0x prefix and checks it
// is 32 bytes of hex.
func NormalizePrivateKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", core.ConfigurationError("RELAYER_PRIVATE_KEY environment variable is not set")
	}
	if !strings.HasPrefix(key, "0x") {
		key = "0x" + key
	}
	if !core.IsHash32(key) {
		return "", core.ConfigurationError(
			"Invalid RELAYER_PRIVATE_KEY format. Expected 0x followed by 64 hex characters, got %d characters.", len(key)-2)
	}
	return key, nil
}

// ParsePrivateKey normalizes and decodes a secp256k1 private key.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	normalized, err := NormalizePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(normalized[2:])
	if err != nil {
		return nil, core.ConfigurationError("invalid relay key: %v", err)
	}
	return key, nil
}
