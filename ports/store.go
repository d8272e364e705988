package ports

import (
	"context"
	"time"

	"github.com/layer-3/tapthat/core"
)

// BridgeRequestStore persists pending cross-chain approvals
type BridgeRequestStore interface {
	// Create inserts a new pending request. A colliding id yields core.ErrDuplicateRequest.
	Create(ctx context.Context, req *core.BridgeRequest) error
	// Get returns the request or core.ErrRequestNotFound.
	Get(ctx context.Context, requestID string) (*core.BridgeRequest, error)
	// Complete moves a pending, unexpired request to completed in a single
	// conditional write. Anything else yields core.ErrNotFoundOrCompleted.
	Complete(ctx context.Context, requestID, txHash string, now time.Time) error
}

// SubscriptionStore persists web push subscriptions per user
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userAddress string) ([]core.PushSubscription, error)
	Upsert(ctx context.Context, sub core.PushSubscription) error
	DeleteByEndpoint(ctx context.Context, userAddress, endpoint string) error
}
