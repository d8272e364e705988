package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/tapthat/core"
	"github.com/layer-3/tapthat/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var idSeq atomic.Uint64

func newRequestID() string {
	return fmt.Sprintf("0x%048x%016x", time.Now().UnixNano(), idSeq.Add(1))
}

func newBridgeRequest(now time.Time) *core.BridgeRequest {
	return &core.BridgeRequest{
		RequestID:     newRequestID(),
		UserAddress:   "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		ChipAddress:   "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		SourceChain:   84532,
		DestChain:     11155111,
		TokenAddress:  "0x0000000000000000000000000000000000000000",
		Amount:        "1000000000000000",
		CallData:      "0xabcdef",
		ChipSignature: "0x" + fmt.Sprintf("%0130x", 1),
		Timestamp:     uint64(now.Unix()),
		Nonce:         "0x" + fmt.Sprintf("%064x", 7),
		Status:        core.BridgeStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(5 * time.Minute),
	}
}

// runBridgeStoreContract exercises the behavior every bridge request store
// must share, whatever its backing.
func runBridgeStoreContract(t *testing.T, s ports.BridgeRequestStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and get", func(t *testing.T) {
		req := newBridgeRequest(now)
		require.NoError(t, s.Create(ctx, req))

		got, err := s.Get(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, req.RequestID, got.RequestID)
		assert.Equal(t, req.UserAddress, got.UserAddress)
		assert.Equal(t, req.Amount, got.Amount)
		assert.Equal(t, req.CallData, got.CallData)
		assert.Equal(t, req.SourceChain, got.SourceChain)
		assert.Equal(t, req.DestChain, got.DestChain)
		assert.Equal(t, core.BridgeStatusPending, got.Status)
		assert.True(t, req.ExpiresAt.Equal(got.ExpiresAt))
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("duplicate id", func(t *testing.T) {
		req := newBridgeRequest(now)
		require.NoError(t, s.Create(ctx, req))
		assert.ErrorIs(t, s.Create(ctx, req), core.ErrDuplicateRequest)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, newRequestID())
		assert.ErrorIs(t, err, core.ErrRequestNotFound)
		assert.ErrorIs(t, s.Complete(ctx, newRequestID(), "0x01", now), core.ErrNotFoundOrCompleted)
	})

	t.Run("complete once", func(t *testing.T) {
		req := newBridgeRequest(now)
		require.NoError(t, s.Create(ctx, req))

		txHash := "0x" + fmt.Sprintf("%064x", 42)
		require.NoError(t, s.Complete(ctx, req.RequestID, txHash, now.Add(time.Second)))
		assert.ErrorIs(t, s.Complete(ctx, req.RequestID, txHash, now.Add(2*time.Second)), core.ErrNotFoundOrCompleted)

		got, err := s.Get(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, core.BridgeStatusCompleted, got.Status)
		assert.Equal(t, txHash, got.TxHash)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("expired", func(t *testing.T) {
		req := newBridgeRequest(now)
		require.NoError(t, s.Create(ctx, req))

		err := s.Complete(ctx, req.RequestID, "0x01", req.ExpiresAt)
		assert.ErrorIs(t, err, core.ErrNotFoundOrCompleted)

		got, err := s.Get(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, core.BridgeStatusPending, got.Status)
	})

	t.Run("concurrent completes", func(t *testing.T) {
		req := newBridgeRequest(now)
		require.NoError(t, s.Create(ctx, req))

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if s.Complete(ctx, req.RequestID, fmt.Sprintf("0x%064x", i), now) == nil {
					successes.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
	})
}

func runSubscriptionStoreContract(t *testing.T, s ports.SubscriptionStore) {
	ctx := context.Background()
	user := fmt.Sprintf("0x%040x", idSeq.Add(1))
	mixedCase := "0X" + user[2:]

	sub := core.PushSubscription{
		UserAddress: mixedCase,
		Endpoint:    "https://push.example.com/" + user,
		Keys:        core.PushKeys{P256dh: "p256", Auth: "auth"},
	}
	require.NoError(t, s.Upsert(ctx, sub))

	sub.Keys.Auth = "rotated"
	require.NoError(t, s.Upsert(ctx, sub))

	other := sub
	other.Endpoint += "/second"
	require.NoError(t, s.Upsert(ctx, other))

	subs, err := s.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, got := range subs {
		assert.Equal(t, user, got.UserAddress)
		if got.Endpoint == sub.Endpoint {
			assert.Equal(t, "rotated", got.Keys.Auth)
		}
	}

	require.NoError(t, s.DeleteByEndpoint(ctx, mixedCase, sub.Endpoint))
	subs, err = s.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, other.Endpoint, subs[0].Endpoint)

	require.NoError(t, s.DeleteByEndpoint(ctx, user, other.Endpoint))
	subs, err = s.ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
