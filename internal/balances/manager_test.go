package balances

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-dexstate/internal/log"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

type call struct {
	op    string
	addrs []string
}

type fakeChain struct {
	mu    sync.Mutex
	calls []call
	fns   []func([]types.AddressBalance)
	err   error
}

func (f *fakeChain) SubscribeBalances(_ context.Context, addresses []string, fn func([]types.AddressBalance)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, call{op: "subscribe", addrs: addresses})
	f.fns = append(f.fns, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, call{op: "unsubscribe", addrs: addresses})
	}, nil
}

func (f *fakeChain) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func list(addrs ...string) []*types.Signer {
	out := make([]*types.Signer, len(addrs))
	for i, a := range addrs {
		out[i] = &types.Signer{Address: a}
	}
	return out
}

func TestManager_SubscriptionSingularity(t *testing.T) {
	chain := &fakeChain{}
	m := New(chain, stream.NewFeed[[]*types.Signer](), log.Nop(), nil)
	ctx := context.Background()

	require.NoError(t, m.handle(ctx, list("A", "B")))
	assert.Equal(t, []string{"subscribe"}, chain.ops())

	// Same set, different order and a duplicate: nothing happens.
	require.NoError(t, m.handle(ctx, list("B", "A", "A")))
	assert.Equal(t, []string{"subscribe"}, chain.ops())

	require.NoError(t, m.handle(ctx, list("A", "B", "C")))
	assert.Equal(t, []string{"subscribe", "unsubscribe", "subscribe"}, chain.ops())
	assert.ElementsMatch(t, []string{"A", "B", "C"}, chain.calls[2].addrs)
}

func TestManager_StaleFeedIsClosed(t *testing.T) {
	chain := &fakeChain{}
	m := New(chain, stream.NewFeed[[]*types.Signer](), log.Nop(), nil)
	ctx := context.Background()

	require.NoError(t, m.handle(ctx, list("A")))
	first, ok := m.Channels().Latest()
	require.True(t, ok)

	require.NoError(t, m.handle(ctx, list("A", "B")))
	second, _ := m.Channels().Latest()
	assert.NotSame(t, first, second)
	assert.True(t, first.Closed())

	// A late push from the old subscription is discarded.
	chain.fns[0]([]types.AddressBalance{{Address: "A", Balance: big.NewInt(1)}})
	_, has := first.Latest()
	assert.False(t, has)

	chain.fns[1]([]types.AddressBalance{{Address: "B", Balance: big.NewInt(2)}})
	snap, has := second.Latest()
	require.True(t, has)
	assert.Equal(t, "B", snap.Balances[0].Address)
	assert.Len(t, snap.Signers, 2)
}

func TestManager_EmptyList(t *testing.T) {
	chain := &fakeChain{}
	m := New(chain, stream.NewFeed[[]*types.Signer](), log.Nop(), nil)

	require.NoError(t, m.handle(context.Background(), nil))
	assert.Empty(t, chain.ops())
	feed, ok := m.Channels().Latest()
	require.True(t, ok)
	snap, ok := feed.Latest()
	require.True(t, ok)
	assert.Empty(t, snap.Balances)
}

func TestManager_RunFailsOnSubscribeError(t *testing.T) {
	chain := &fakeChain{err: errors.New("dial refused")}
	signers := stream.NewFeed[[]*types.Signer]()
	m := New(chain, signers, log.Nop(), nil)

	signers.Send(list("A"))
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dial refused")
	case <-time.After(time.Second):
		t.Fatal("Run did not fail")
	}
	assert.True(t, m.Channels().Closed())
}

func TestManager_FollowSeesNewestSubscription(t *testing.T) {
	chain := &fakeChain{}
	signers := stream.NewFeed[[]*types.Signer]()
	m := New(chain, signers, log.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	var (
		mu   sync.Mutex
		seen []string
	)
	go m.Follow(ctx, func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		for _, b := range s.Balances {
			seen = append(seen, b.Address)
		}
	})

	signers.Send(list("A"))
	require.Eventually(t, func() bool { return len(chain.ops()) == 1 }, time.Second, 5*time.Millisecond)
	signers.Send(list("A", "B"))
	require.Eventually(t, func() bool { return len(chain.ops()) == 3 }, time.Second, 5*time.Millisecond)

	chain.mu.Lock()
	latestFn := chain.fns[1]
	chain.mu.Unlock()
	latestFn([]types.AddressBalance{{Address: "B", Balance: big.NewInt(5)}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "B"
	}, time.Second, 5*time.Millisecond)
}
