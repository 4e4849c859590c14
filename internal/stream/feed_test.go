package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_ReplaysLatest(t *testing.T) {
	f := NewFeed[int]()
	f.Send(1)
	f.Send(2)

	sub := f.Subscribe()
	defer sub.Unsubscribe()

	select {
	case v := <-sub.C():
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("no replay of latest value")
	}
}

func TestFeed_SendNeverBlocks(t *testing.T) {
	f := NewFeed[int]()
	sub := f.Subscribe()
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			f.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a slow subscriber")
	}

	v := <-sub.C()
	assert.Equal(t, 999, v, "slow subscriber must see the latest value")
	latest, ok := f.Latest()
	require.True(t, ok)
	assert.Equal(t, 999, latest)
}

func TestFeed_CloseClosesSubscribers(t *testing.T) {
	f := NewFeed[string]()
	sub := f.Subscribe()
	f.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.True(t, f.Closed())

	f.Send("ignored")
	late := f.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok, "subscribe after close yields a closed channel")

	sub.Unsubscribe()
}

func TestFeed_Unsubscribe(t *testing.T) {
	f := NewFeed[int]()
	sub := f.Subscribe()
	sub.Unsubscribe()
	sub.Unsubscribe()

	f.Send(1)
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestFollow_SwitchesToNewestInner(t *testing.T) {
	outer := NewFeed[*Feed[int]]()
	first := NewFeed[int]()
	second := NewFeed[int]()

	var last atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Follow(ctx, outer, func(v int) { last.Store(int64(v)) })

	outer.Send(first)
	first.Send(10)
	require.Eventually(t, func() bool { return last.Load() == 10 }, time.Second, 5*time.Millisecond)

	outer.Send(second)
	second.Send(20)
	require.Eventually(t, func() bool { return last.Load() == 20 }, time.Second, 5*time.Millisecond)

	first.Send(99)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(20), last.Load(), "values from a replaced inner feed must be ignored")
}
