package store

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/metrics"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = time.Second
)

// Retrier reruns store operations that failed with a transient store error.
// Every other outcome, success included, is returned after the first attempt.
type Retrier struct {
	attempts uint
	backoff  time.Duration
	logger   *zap.Logger
}

func NewRetrier(logger *zap.Logger) *Retrier {
	return &Retrier{attempts: DefaultRetryAttempts, backoff: DefaultRetryBackoff, logger: logger}
}

// WithBackoff overrides the wait between attempts.
func (r *Retrier) WithBackoff(backoff time.Duration) *Retrier {
	cp := *r
	cp.backoff = backoff
	return &cp
}

func (r *Retrier) do(op string, fn func() error) error {
	var last error
	_ = retry.Retry(func(attempt uint) error {
		if attempt > 1 {
			metrics.StoreRetries.WithLabelValues(op).Inc()
			r.logger.Warn("retrying store operation", zap.String("op", op), zap.Uint("attempt", attempt), zap.Error(last))
		}
		last = fn()
		if core.KindOf(last) == core.KindTransientStore {
			return last
		}
		return nil
	}, strategy.Limit(r.attempts), strategy.Wait(r.backoff))

	return last
}

type retryingBridgeStore struct {
	inner ports.BridgeRequestStore
	r     *Retrier
}

// WithRetry decorates a bridge request store with transient failure retries
func WithRetry(inner ports.BridgeRequestStore, r *Retrier) ports.BridgeRequestStore {
	return &retryingBridgeStore{inner: inner, r: r}
}

func (s *retryingBridgeStore) Create(ctx context.Context, req *core.BridgeRequest) error {
	return s.r.do("create_bridge_request", func() error { return s.inner.Create(ctx, req) })
}

func (s *retryingBridgeStore) Get(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	var out *core.BridgeRequest
	err := s.r.do("get_bridge_request", func() error {
		var err error
		out, err = s.inner.Get(ctx, requestID)
		return err
	})
	return out, err
}

func (s *retryingBridgeStore) Complete(ctx context.Context, requestID, txHash string, now time.Time) error {
	return s.r.do("complete_bridge_request", func() error { return s.inner.Complete(ctx, requestID, txHash, now) })
}

type retryingSubscriptionStore struct {
	inner ports.SubscriptionStore
	r     *Retrier
}

// WithSubscriptionRetry decorates a subscription store with transient failure retries
func WithSubscriptionRetry(inner ports.SubscriptionStore, r *Retrier) ports.SubscriptionStore {
	return &retryingSubscriptionStore{inner: inner, r: r}
}

func (s *retryingSubscriptionStore) ListByUser(ctx context.Context, userAddress string) ([]core.PushSubscription, error) {
	var out []core.PushSubscription
	err := s.r.do("list_subscriptions", func() error {
		var err error
		out, err = s.inner.ListByUser(ctx, userAddress)
		return err
	})
	return out, err
}

func (s *retryingSubscriptionStore) Upsert(ctx context.Context, sub core.PushSubscription) error {
	return s.r.do("upsert_subscription", func() error { return s.inner.Upsert(ctx, sub) })
}

func (s *retryingSubscriptionStore) DeleteByEndpoint(ctx context.Context, userAddress, endpoint string) error {
	return s.r.do("delete_subscription", func() error { return s.inner.DeleteByEndpoint(ctx, userAddress, endpoint) })
}
