package stream

import "context"

// Follow delivers values from the newest inner feed announced on outer to
// fn. When outer announces a new inner feed the previous one is dropped
// and only the new one is followed. Follow returns when ctx is done or
// outer closes.
func Follow[T any](ctx context.Context, outer *Feed[*Feed[T]], fn func(T)) {
	outerSub := outer.Subscribe()
	defer outerSub.Unsubscribe()

	var (
		inner   *Subscription[T]
		innerCh <-chan T
	)
	defer func() {
		if inner != nil {
			inner.Unsubscribe()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-outerSub.C():
			if !ok {
				return
			}
			if inner != nil {
				inner.Unsubscribe()
				inner, innerCh = nil, nil
			}
			if f != nil {
				inner = f.Subscribe()
				innerCh = inner.C()
			}
		case v, ok := <-innerCh:
			if !ok {
				innerCh = nil
				continue
			}
			fn(v)
		}
	}
}

// Each calls fn for every value delivered on feed until ctx is done or the
// feed closes.
func Each[T any](ctx context.Context, feed *Feed[T], fn func(T)) {
	sub := feed.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			fn(v)
		}
	}
}
