package ports

import (
	"context"

	"github.com/layer-3/tapthat/core"
)

// EventPublisher publishes bridge request lifecycle events to other instances
type EventPublisher interface {
	PublishBridgeRequested(ctx context.Context, req *core.BridgeRequest) error
	PublishBridgeCompleted(ctx context.Context, requestID, txHash string) error
}
