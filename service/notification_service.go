package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/metrics"
	"github.com/layer-3/tapthat/ports"
	"go.uber.org/zap"
)

// BridgeNotification is the push payload that sends a user's other device
// to the approval page.
type BridgeNotification struct {
	RequestID       string `json:"requestId"`
	Amount          string `json:"amount"`
	Token           string `json:"token"`
	SourceChainID   uint64 `json:"sourceChainId"`
	DestChainID     uint64 `json:"destChainId"`
	SourceChainName string `json:"sourceChainName"`
	DestChainName   string `json:"destChainName"`
	URL             string `json:"url"`
}

// NewBridgeNotification builds the payload for a freshly created request
func NewBridgeNotification(req *core.BridgeRequest, token string) BridgeNotification {
	return BridgeNotification{
		RequestID:       req.RequestID,
		Amount:          req.Amount,
		Token:           token,
		SourceChainID:   req.SourceChain,
		DestChainID:     req.DestChain,
		SourceChainName: core.ChainName(req.SourceChain),
		DestChainName:   core.ChainName(req.DestChain),
		URL:             "/bridge/execute/" + req.RequestID,
	}
}

// NotificationService fans bridge approval prompts out to a user's devices
type NotificationService struct {
	subscriptions ports.SubscriptionStore
	sender        ports.PushSender
	logger        *zap.Logger
}

func NewNotificationService(subscriptions ports.SubscriptionStore, sender ports.PushSender, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		subscriptions: subscriptions,
		sender:        sender,
		logger:        logger,
	}
}

// Send delivers payload to every subscription of userAddress in parallel.
// Subscriptions reported gone are deleted and do not fail the call. Other
// delivery errors are joined and returned once every subscription is handled.
func (s *NotificationService) Send(ctx context.Context, userAddress string, payload any) error {
	user := core.NormalizeAddress(userAddress)

	subs, err := s.subscriptions.ListByUser(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return core.NotFoundError(fmt.Errorf("%w for user %s", core.ErrNoSubscription, userAddress))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub core.PushSubscription) {
			defer wg.Done()
			if err := s.deliver(ctx, user, sub, body); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *NotificationService) deliver(ctx context.Context, user string, sub core.PushSubscription, body []byte) error {
	err := s.sender.Send(ctx, sub, body)
	switch {
	case err == nil:
		metrics.PushDeliveries.WithLabelValues("sent").Inc()
		return nil

	case errors.Is(err, core.ErrSubscriptionGone):
		metrics.PushDeliveries.WithLabelValues("gone").Inc()
		s.logger.Info("removing expired push subscription",
			zap.String("user", user),
			zap.String("endpoint", sub.Endpoint),
		)
		if err := s.subscriptions.DeleteByEndpoint(ctx, user, sub.Endpoint); err != nil {
			return fmt.Errorf("failed to delete expired subscription: %w", err)
		}
		return nil

	default:
		metrics.PushDeliveries.WithLabelValues("failed").Inc()
		s.logger.Warn("push delivery failed",
			zap.String("user", user),
			zap.String("endpoint", sub.Endpoint),
			zap.Error(err),
		)
		return err
	}
}

// Save upserts the subscription for (userAddress, endpoint)
func (s *NotificationService) Save(ctx context.Context, userAddress string, sub core.PushSubscription) error {
	if userAddress == "" || sub.Endpoint == "" {
		return core.ValidationError("Missing userAddress or subscription")
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return core.ValidationError("Invalid subscription format")
	}

	sub.UserAddress = core.NormalizeAddress(userAddress)
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// PublicKey returns the VAPID public key, empty when push is not configured
func (s *NotificationService) PublicKey() string {
	return s.sender.PublicKey()
}
