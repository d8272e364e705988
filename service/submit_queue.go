package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/layer-3/tapthat/metrics"
)

// ErrQueueClosed is returned for work submitted to a stopped queue
var ErrQueueClosed = errors.New("submit queue is closed")

type submitJob struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// SubmitQueue runs relay transactions for one chain one at a time, so the
// relay account never has two transactions racing for the same nonce.
type SubmitQueue struct {
	label   string
	jobs    chan submitJob
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewSubmitQueue(chainID uint64, depth int) *SubmitQueue {
	q := &SubmitQueue{
		label:   strconv.FormatUint(chainID, 10),
		jobs:    make(chan submitJob, depth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SubmitQueue) run() {
	defer close(q.stopped)

	for {
		select {
		case job := <-q.jobs:
			metrics.SubmitQueueDepth.WithLabelValues(q.label).Dec()
			if err := job.ctx.Err(); err != nil {
				job.result <- err
				continue
			}
			job.result <- job.fn(job.ctx)
		case <-q.done:
			return
		}
	}
}

// Submit waits for fn to run on the chain worker and returns its error
func (q *SubmitQueue) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	job := submitJob{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		metrics.SubmitQueueDepth.WithLabelValues(q.label).Inc()
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		select {
		case err := <-job.result:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

// Close stops the worker after the job in flight, if any, finishes
func (q *SubmitQueue) Close() {
	q.once.Do(func() { close(q.done) })
	<-q.stopped
}
