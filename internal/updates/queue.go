// Package updates implements the queue of locally triggered refresh
// requests.
package updates

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Queue accepts update contexts from any number of producers and hands
// them to a single consumer in arrival order. Push never blocks.
type Queue struct {
	mu      sync.Mutex
	pending []types.UpdateContext
	wake    chan struct{}
	out     chan types.UpdateContext

	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewQueue creates an update request queue.
func NewQueue(logger zerolog.Logger, m *metrics.Collector) *Queue {
	return &Queue{
		wake:    make(chan struct{}, 1),
		out:     make(chan types.UpdateContext),
		logger:  logger,
		metrics: m,
	}
}

// Push enqueues an update context. Requests with an unknown kind are
// removed; a context left empty is dropped.
func (q *Queue) Push(uc types.UpdateContext) {
	reqs := make([]types.UpdateRequest, 0, len(uc.Requests))
	for _, r := range uc.Requests {
		if !r.Kind.Valid() {
			q.logger.Debug().Stringer("kind", r.Kind).Msg("Dropping update request with unknown kind")
			continue
		}
		reqs = append(reqs, r)
	}
	if len(reqs) == 0 {
		q.metrics.UpdateContext(false)
		return
	}
	q.metrics.UpdateContext(true)

	q.mu.Lock()
	q.pending = append(q.pending, types.UpdateContext{Requests: reqs})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Request is shorthand for pushing the cross product of kinds and addresses.
func (q *Queue) Request(kinds []types.DataKind, addresses ...string) {
	q.Push(types.NewUpdateContext(kinds, addresses...))
}

// C returns the channel of accepted update contexts.
func (q *Queue) C() <-chan types.UpdateContext {
	return q.out
}

// Len returns the number of contexts waiting for the consumer.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run pumps queued contexts to C until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.mu.Lock()
		var next types.UpdateContext
		have := len(q.pending) > 0
		if have {
			next = q.pending[0]
			q.pending[0] = types.UpdateContext{}
			q.pending = q.pending[1:]
		}
		q.mu.Unlock()

		if !have {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case q.out <- next:
		}
	}
}
