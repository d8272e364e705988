package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/tapthat/config"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

type ApprovalStatus string

const (
	ApprovalCompleted        ApprovalStatus = "completed"
	ApprovalAlreadyCompleted ApprovalStatus = "already_completed"
)

// ApprovalResult is the outcome of approving a bridge request. Verification
// is filled in whenever verification ran, including when it failed.
type ApprovalResult struct {
	RequestID    string             `json:"requestId"`
	Status       ApprovalStatus     `json:"status,omitempty"`
	TxHash       string             `json:"txHash,omitempty"`
	Verification VerificationResult `json:"verification"`
}

// ApprovalService runs a bridge request on the approving device: verify the
// chip signature, bridge, then mark the request completed.
type ApprovalService struct {
	source      ports.BridgeRequestSource
	bridger     ports.Bridger
	deployments config.Deployments
	logger      *zap.Logger

	now func() time.Time
}

func NewApprovalService(
	source ports.BridgeRequestSource,
	bridger ports.Bridger,
	deployments config.Deployments,
	logger *zap.Logger,
) *ApprovalService {
	return &ApprovalService{
		source:      source,
		bridger:     bridger,
		deployments: deployments,
		logger:      logger,
		now:         time.Now,
	}
}

// Approve executes the bridge for requestID as connectedWallet
func (s *ApprovalService) Approve(ctx context.Context, requestID, connectedWallet string) (*ApprovalResult, error) {
	req, err := s.source.GetBridgeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	result := &ApprovalResult{RequestID: req.RequestID}

	if !req.IsPending() {
		return result, core.ValidationError("Bridge request already completed")
	}
	if req.IsExpired(s.now()) {
		return result, core.ValidationError("Bridge request expired")
	}

	protocol, ok := s.deployments.ProtocolAddress(req.SourceChain)
	if !ok {
		return result, core.ValidationError("Protocol not deployed on chain %d", req.SourceChain)
	}

	result.Verification = VerifyBridgeRequest(req, connectedWallet, protocol)
	if !result.Verification.IsValid {
		return result, core.VerificationError(result.Verification.Error)
	}

	order, err := bridgeOrder(req)
	if err != nil {
		return result, err
	}

	log := s.logger.With(zap.String("requestId", req.RequestID))
	log.Info("bridging",
		zap.String("amount", req.Amount),
		zap.Uint64("sourceChain", req.SourceChain),
		zap.Uint64("destChain", req.DestChain),
	)

	outcome, err := s.bridger.Bridge(ctx, order)
	if err != nil {
		return result, core.ExecutionError("Bridge failed", err)
	}
	if !outcome.Success {
		msg := outcome.Error
		if msg == "" {
			msg = "bridge reported failure"
		}
		return result, core.ExecutionError("Bridge failed: "+msg, nil)
	}
	result.TxHash = outcome.TxHash

	err = s.source.CompleteBridgeRequest(ctx, req.RequestID, outcome.TxHash)
	switch {
	case err == nil:
		result.Status = ApprovalCompleted
	case core.KindOf(err) == core.KindNotFound:
		log.Warn("bridge request was completed elsewhere", zap.String("txHash", outcome.TxHash))
		result.Status = ApprovalAlreadyCompleted
	default:
		return result, fmt.Errorf("bridge executed but completion failed: %w", err)
	}

	log.Info("bridge approved", zap.String("txHash", outcome.TxHash), zap.String("status", string(result.Status)))
	return result, nil
}

func bridgeOrder(req *core.BridgeRequest) (ports.BridgeOrder, error) {
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return ports.BridgeOrder{}, core.ValidationError("Invalid bridge amount %q", req.Amount)
	}
	if !common.IsHexAddress(req.TokenAddress) {
		return ports.BridgeOrder{}, core.ValidationError("Invalid token address %q", req.TokenAddress)
	}
	return ports.BridgeOrder{
		Token:        common.HexToAddress(req.TokenAddress),
		Amount:       amount,
		DestChain:    req.DestChain,
		SourceChains: []uint64{req.SourceChain},
	}, nil
}
