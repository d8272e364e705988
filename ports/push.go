package ports

import (
	"context"

	"github.com/layer-3/tapthat/core"
)

// PushSender delivers one payload to one subscription. A subscription the
// push service reports as gone yields core.ErrSubscriptionGone.
type PushSender interface {
	Send(ctx context.Context, sub core.PushSubscription, payload []byte) error
	PublicKey() string
}
