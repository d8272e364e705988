package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"github.com/redis/go-redis/v9"
)

// Completed and expired requests are kept this long past expiry before Redis
// evicts them.
const redisRetention = 24 * time.Hour

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
return 1
`)

// ARGV: txHash, nowMillis
var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'pending' then
	return 0
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at') or '0')
if expires > 0 and expires <= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'completed', 'tx_hash', ARGV[1], 'completed_at', ARGV[2])
return 1
`)

// RedisStore is a Redis implementation of the bridge request and
// subscription stores
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ ports.BridgeRequestStore = (*RedisStore)(nil)
	_ ports.SubscriptionStore  = (*RedisStore)(nil)
)

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "tapthat:",
	}
}

func (s *RedisStore) requestKey(id string) string {
	return s.prefix + "bridge:" + id
}

func (s *RedisStore) subscriptionKey(user string) string {
	return s.prefix + "push:" + core.NormalizeAddress(user)
}

// Create stores a pending request unless the id is already taken
func (s *RedisStore) Create(ctx context.Context, req *core.BridgeRequest) error {
	evictAt := req.ExpiresAt.Add(redisRetention).UnixMilli()
	args := append([]any{evictAt}, requestFields(req)...)

	created, err := createScript.Run(ctx, s.client, []string{s.requestKey(req.RequestID)}, args...).Int()
	if err != nil {
		return classify("create bridge request", fmt.Errorf("failed to create bridge request: %w", err))
	}
	if created == 0 {
		return core.ErrDuplicateRequest
	}

	return nil
}

// Get fetches a bridge request by id
func (s *RedisStore) Get(ctx context.Context, requestID string) (*core.BridgeRequest, error) {
	fields, err := s.client.HGetAll(ctx, s.requestKey(requestID)).Result()
	if err != nil {
		return nil, classify("get bridge request", fmt.Errorf("failed to get bridge request: %w", err))
	}
	if len(fields) == 0 {
		return nil, core.ErrRequestNotFound
	}

	return parseRequestFields(requestID, fields)
}

// Complete atomically moves a pending, unexpired request to completed
func (s *RedisStore) Complete(ctx context.Context, requestID, txHash string, now time.Time) error {
	done, err := completeScript.Run(ctx, s.client, []string{s.requestKey(requestID)}, txHash, now.UnixMilli()).Int()
	if err != nil {
		return classify("complete bridge request", fmt.Errorf("failed to complete bridge request: %w", err))
	}
	if done == 0 {
		return core.ErrNotFoundOrCompleted
	}

	return nil
}

// ListByUser returns every subscription of a user
func (s *RedisStore) ListByUser(ctx context.Context, userAddress string) ([]core.PushSubscription, error) {
	entries, err := s.client.HGetAll(ctx, s.subscriptionKey(userAddress)).Result()
	if err != nil {
		return nil, classify("list subscriptions", fmt.Errorf("failed to list subscriptions: %w", err))
	}

	subs := make([]core.PushSubscription, 0, len(entries))
	for endpoint, raw := range entries {
		var keys core.PushKeys
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return nil, fmt.Errorf("failed to decode subscription keys: %w", err)
		}
		subs = append(subs, core.PushSubscription{
			UserAddress: core.NormalizeAddress(userAddress),
			Endpoint:    endpoint,
			Keys:        keys,
		})
	}

	return subs, nil
}

// Upsert inserts or refreshes the keys of (user, endpoint)
func (s *RedisStore) Upsert(ctx context.Context, sub core.PushSubscription) error {
	keys, err := json.Marshal(sub.Keys)
	if err != nil {
		return fmt.Errorf("failed to encode subscription keys: %w", err)
	}
	if err := s.client.HSet(ctx, s.subscriptionKey(sub.UserAddress), sub.Endpoint, keys).Err(); err != nil {
		return classify("upsert subscription", fmt.Errorf("failed to save subscription: %w", err))
	}

	return nil
}

// DeleteByEndpoint removes one subscription
func (s *RedisStore) DeleteByEndpoint(ctx context.Context, userAddress, endpoint string) error {
	if err := s.client.HDel(ctx, s.subscriptionKey(userAddress), endpoint).Err(); err != nil {
		return classify("delete subscription", fmt.Errorf("failed to delete subscription: %w", err))
	}

	return nil
}

func requestFields(req *core.BridgeRequest) []any {
	status := req.Status
	if status == "" {
		status = core.BridgeStatusPending
	}
	return []any{
		"user_address", req.UserAddress,
		"chip_address", req.ChipAddress,
		"chip_signature", req.ChipSignature,
		"source_chain", req.SourceChain,
		"dest_chain", req.DestChain,
		"token_address", req.TokenAddress,
		"amount", req.Amount,
		"call_data", req.CallData,
		"timestamp", req.Timestamp,
		"nonce", req.Nonce,
		"status", string(status),
		"created_at", req.CreatedAt.UnixMilli(),
		"expires_at", req.ExpiresAt.UnixMilli(),
	}
}

func parseRequestFields(id string, f map[string]string) (*core.BridgeRequest, error) {
	var parseErr error
	parseUint := func(key string) uint64 {
		v, err := strconv.ParseUint(f[key], 10, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("invalid %s %q: %w", key, f[key], err)
		}
		return v
	}
	parseMillis := func(key string) time.Time {
		v, err := strconv.ParseInt(f[key], 10, 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("invalid %s %q: %w", key, f[key], err)
		}
		return time.UnixMilli(v).UTC()
	}

	req := &core.BridgeRequest{
		RequestID:     id,
		UserAddress:   f["user_address"],
		ChipAddress:   f["chip_address"],
		ChipSignature: f["chip_signature"],
		SourceChain:   parseUint("source_chain"),
		DestChain:     parseUint("dest_chain"),
		TokenAddress:  f["token_address"],
		Amount:        f["amount"],
		CallData:      f["call_data"],
		Timestamp:     parseUint("timestamp"),
		Nonce:         f["nonce"],
		Status:        core.BridgeStatus(f["status"]),
		TxHash:        f["tx_hash"],
		CreatedAt:     parseMillis("created_at"),
		ExpiresAt:     parseMillis("expires_at"),
	}
	if _, ok := f["completed_at"]; ok {
		completedAt := parseMillis("completed_at")
		req.CompletedAt = &completedAt
	}
	if parseErr != nil {
		return nil, errors.Join(errors.New("corrupt bridge request record"), parseErr)
	}

	return req, nil
}
