package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
)

var (
	_ ports.BridgeRequestStore = (*MemoryStore)(nil)
	_ ports.SubscriptionStore  = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory implementation of the bridge request and
// subscription stores
type MemoryStore struct {
	requests      map[string]core.BridgeRequest
	subscriptions map[string]map[string]core.PushSubscription // user -> endpoint -> sub
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:      make(map[string]core.BridgeRequest),
		subscriptions: make(map[string]map[string]core.PushSubscription),
	}
}

// Create stores a new bridge request
func (s *MemoryStore) Create(ctx context.Context, req *core.BridgeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.RequestID]; exists {
		return core.ErrDuplicateRequest
	}
	stored := *req
	if stored.Status == "" {
		stored.Status = core.BridgeStatusPending
	}
	s.requests[req.RequestID] = stored

	return nil
}

// Get returns a copy of the stored request
func (s *MemoryStore) Get(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[requestID]
	if !exists {
		return nil, core.ErrRequestNotFound
	}

	return &req, nil
}

// Complete marks a pending, unexpired request as completed
func (s *MemoryStore) Complete(ctx context.Context, requestID, txHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, exists := s.requests[requestID]
	if !exists || !req.IsPending() || req.IsExpired(now) {
		return core.ErrNotFoundOrCompleted
	}

	completedAt := now
	req.Status = core.BridgeStatusCompleted
	req.TxHash = txHash
	req.CompletedAt = &completedAt
	s.requests[requestID] = req

	return nil
}

// ListByUser returns every subscription of a user
func (s *MemoryStore) ListByUser(ctx context.Context, userAddress string) ([]core.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byEndpoint := s.subscriptions[core.NormalizeAddress(userAddress)]
	subs := make([]core.PushSubscription, 0, len(byEndpoint))
	for _, sub := range byEndpoint {
		subs = append(subs, sub)
	}

	return subs, nil
}

// Upsert inserts or replaces the subscription for (user, endpoint)
func (s *MemoryStore) Upsert(ctx context.Context, sub core.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := core.NormalizeAddress(sub.UserAddress)
	sub.UserAddress = user
	if s.subscriptions[user] == nil {
		s.subscriptions[user] = make(map[string]core.PushSubscription)
	}
	s.subscriptions[user][sub.Endpoint] = sub

	return nil
}

// DeleteByEndpoint removes one subscription
func (s *MemoryStore) DeleteByEndpoint(ctx context.Context, userAddress, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := core.NormalizeAddress(userAddress)
	delete(s.subscriptions[user], endpoint)
	if len(s.subscriptions[user]) == 0 {
		delete(s.subscriptions, user)
	}

	return nil
}
