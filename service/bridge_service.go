package service

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/tapthat/config"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/metrics"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

// BridgeService exposes bridge requests to the approving device
type BridgeService struct {
	store       ports.BridgeRequestStore
	events      ports.EventPublisher
	deployments config.Deployments
	logger      *zap.Logger

	now func() time.Time
}

func NewBridgeService(
	store ports.BridgeRequestStore,
	events ports.EventPublisher,
	deployments config.Deployments,
	logger *zap.Logger,
) *BridgeService {
	return &BridgeService{
		store:       store,
		events:      events,
		deployments: deployments,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns the request with requestID
func (s *BridgeService) Get(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	if !core.IsHash32(requestID) {
		return nil, core.ValidationError("Invalid request ID format")
	}

	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, core.ErrRequestNotFound) {
			return nil, core.NotFoundError(errors.New("Bridge request not found"))
		}
		return nil, err
	}
	return req, nil
}

// Complete marks a pending, unexpired request as completed with txHash.
// Exactly one caller succeeds for a given request.
func (s *BridgeService) Complete(ctx context.Context, requestID, txHash string) error {
	if !core.IsHash32(requestID) {
		return core.ValidationError("Invalid request ID format")
	}
	if !core.IsHash32(txHash) {
		return core.ValidationError("Invalid transaction hash")
	}

	err := s.store.Complete(ctx, requestID, txHash, s.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFoundOrCompleted):
		metrics.BridgeRequestsCompleted.WithLabelValues("rejected").Inc()
		return core.NotFoundError(errors.New("Bridge request not found or already completed"))
	default:
		metrics.BridgeRequestsCompleted.WithLabelValues("error").Inc()
		return err
	}
	metrics.BridgeRequestsCompleted.WithLabelValues("completed").Inc()

	s.logger.Info("bridge request completed",
		zap.String("requestId", requestID),
		zap.String("txHash", txHash),
	)

	if err := s.events.PublishBridgeCompleted(ctx, requestID, txHash); err != nil {
		s.logger.Warn("failed to publish bridge completed event",
			zap.String("requestId", requestID),
			zap.Error(err),
		)
	}
	return nil
}

// Verify checks a stored request against the wallet connected on the
// approving device.
func (s *BridgeService) Verify(ctx context.Context, requestID, connectedWallet string) (*VerificationResult, error) {
	if connectedWallet == "" {
		return nil, core.ValidationError("Missing connectedWallet")
	}

	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	protocol, ok := s.deployments.ProtocolAddress(req.SourceChain)
	if !ok {
		return nil, core.ValidationError("Protocol not deployed on chain %d", req.SourceChain)
	}

	result := VerifyBridgeRequest(req, connectedWallet, protocol)
	return &result, nil
}

// GetBridgeRequest lets an in-process approval flow use the service as its
// request source.
func (s *BridgeService) GetBridgeRequest(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	return s.Get(ctx, requestID)
}

func (s *BridgeService) CompleteBridgeRequest(ctx context.Context, requestID, txHash string) error {
	return s.Complete(ctx, requestID, txHash)
}
