// Package stream provides the latest-value broadcast channel that connects
// the state components.
package stream

import "sync"

// Feed is a broadcast of snapshots. Each subscriber sees the most recent
// value on subscribe and every later value it keeps up with; a slow
// subscriber only ever misses intermediate values, never the latest one.
// Send never blocks.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	latest T
	has    bool
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Send publishes v to all subscribers. Sending on a closed feed is a no-op.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.latest = v
	f.has = true
	for s := range f.subs {
		s.offer(v)
	}
}

// Latest returns the last sent value and whether one exists.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Subscribe registers a new subscriber. The latest value, if any, is
// delivered immediately. On a closed feed the returned channel is closed.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{feed: f, ch: make(chan T, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		close(s.ch)
		s.done = true
		return s
	}
	if f.has {
		s.ch <- f.latest
	}
	f.subs[s] = struct{}{}
	return s
}

// Close closes every subscriber channel. Further sends are dropped.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		s.done = true
		close(s.ch)
	}
	f.subs = nil
}

// Closed reports whether Close has been called.
func (f *Feed[T]) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Subscription is one consumer of a Feed.
type Subscription[T any] struct {
	feed *Feed[T]
	ch   chan T
	done bool // guarded by feed.mu
}

// C returns the delivery channel. It is closed on Unsubscribe or when the
// feed closes.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Unsubscribe detaches the subscriber and closes its channel.
func (s *Subscription[T]) Unsubscribe() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	delete(s.feed.subs, s)
	close(s.ch)
}

// offer replaces any undelivered value with v. Caller holds feed.mu, so
// after the drain the buffer has room.
func (s *Subscription[T]) offer(v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}
