package service

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/internal/eth"
)

// VerificationResult explains why a bridge request may or may not be executed
type VerificationResult struct {
	IsValid              bool   `json:"isValid"`
	WalletMatches        bool   `json:"walletMatches"`
	ChipSignatureValid   bool   `json:"chipSignatureValid"`
	RecoveredChipAddress string `json:"recoveredChipAddress,omitempty"`
	Error                string `json:"error,omitempty"`
}

// VerifyBridgeRequest checks that connectedWallet owns the request and that
// the stored chip signature was produced by the request's chip over the
// bridge sentinel authorization. It never fails; the result says which check
// did not pass.
func VerifyBridgeRequest(req *core.BridgeRequest, connectedWallet string, protocol common.Address) VerificationResult {
	if !strings.EqualFold(strings.TrimSpace(connectedWallet), req.UserAddress) {
		return VerificationResult{
			Error: fmt.Sprintf("Wallet mismatch. Expected %s, got %s", req.UserAddress, connectedWallet),
		}
	}

	recovered, err := recoverBridgeSigner(req, protocol)
	if err != nil {
		return VerificationResult{
			WalletMatches: true,
			Error:         err.Error(),
		}
	}

	if !strings.EqualFold(recovered.Hex(), req.ChipAddress) {
		return VerificationResult{
			WalletMatches:        true,
			RecoveredChipAddress: recovered.Hex(),
			Error:                fmt.Sprintf("Chip verification failed. Expected %s, recovered %s", req.ChipAddress, recovered.Hex()),
		}
	}

	return VerificationResult{
		IsValid:              true,
		WalletMatches:        true,
		ChipSignatureValid:   true,
		RecoveredChipAddress: recovered.Hex(),
	}
}

// recoverBridgeSigner rebuilds the authorization the chip signed when the
// request was created: owner, sentinel target, stored callData, zero value,
// stored timestamp and nonce.
func recoverBridgeSigner(req *core.BridgeRequest, protocol common.Address) (common.Address, error) {
	if req.ChipSignature == "" {
		return common.Address{}, errors.New("No chip signature provided")
	}
	if req.CallData == "" {
		return common.Address{}, errors.New("Original callData not found in bridge request. Cannot verify signature.")
	}

	callData, err := hexutil.Decode(req.CallData)
	if err != nil {
		return common.Address{}, fmt.Errorf("Signature recovery failed: invalid callData: %v", err)
	}
	nonce, err := eth.ParseNonce(req.Nonce)
	if err != nil {
		return common.Address{}, fmt.Errorf("Signature recovery failed: %v", err)
	}
	owner, err := eth.ParseAddress(req.UserAddress)
	if err != nil {
		return common.Address{}, fmt.Errorf("Signature recovery failed: %v", err)
	}

	td := eth.CallAuthorizationTypedData(eth.ProtocolDomain(protocol), core.CallAuthorization{
		Owner:     owner,
		Target:    core.BridgeSentinel,
		CallData:  callData,
		Value:     new(big.Int),
		Timestamp: new(big.Int).SetUint64(req.Timestamp),
		Nonce:     nonce,
	})

	recovered, err := eth.RecoverSignerHex(td, req.ChipSignature)
	if err != nil {
		return common.Address{}, fmt.Errorf("Signature recovery failed: %v", err)
	}
	return recovered, nil
}
