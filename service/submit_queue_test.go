package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitQueue_Serializes(t *testing.T) {
	q := NewSubmitQueue(1, 8)
	defer q.Close()

	var (
		inFlight int32
		maxSeen  int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Submit(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestSubmitQueue_ReturnsJobError(t *testing.T) {
	q := NewSubmitQueue(1, 1)
	defer q.Close()

	boom := errors.New("boom")
	err := q.Submit(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSubmitQueue_CanceledWhileWaiting(t *testing.T) {
	q := NewSubmitQueue(1, 4)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Submit(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- q.Submit(ctx, func(ctx context.Context) error {
			ran.Store(true)
			return nil
		})
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	close(release)

	// the canceled job is drained without running
	require.NoError(t, q.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	assert.False(t, ran.Load())
}

func TestSubmitQueue_Closed(t *testing.T) {
	q := NewSubmitQueue(1, 1)
	q.Close()
	q.Close()

	err := q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)
}
