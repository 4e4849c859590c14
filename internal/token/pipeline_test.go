package token

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

type fakeIndexer struct {
	mu       sync.Mutex
	metadata map[string]types.TokenMetadata
	queries  [][]string
	failMeta error
	subs     []string
	fns      map[string]func([]types.Holding)
}

func newFakeIndexer(metas ...types.TokenMetadata) *fakeIndexer {
	f := &fakeIndexer{
		metadata: make(map[string]types.TokenMetadata),
		fns:      make(map[string]func([]types.Holding)),
	}
	for _, m := range metas {
		f.metadata[m.Address] = m
	}
	return f
}

func (f *fakeIndexer) SubscribeTokenHoldings(_ context.Context, address string, fn func([]types.Holding)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, address)
	f.fns[address] = fn
	return func() {}, nil
}

func (f *fakeIndexer) ContractData(_ context.Context, addresses []string) ([]types.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, addresses)
	if f.failMeta != nil {
		return nil, f.failMeta
	}
	var out []types.TokenMetadata
	for _, a := range addresses {
		if m, ok := f.metadata[a]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeIndexer) push(address string, h []types.Holding) {
	f.mu.Lock()
	fn := f.fns[address]
	f.mu.Unlock()
	fn(h)
}

type fakeChain struct {
	bal *big.Int
	err error
}

func (f fakeChain) FreeBalance(context.Context, string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.bal), nil
}

const iconBase = "https://icons.example.org"

func newPipeline(t *testing.T, idx *fakeIndexer, chain Chain) (*Pipeline, *stream.Feed[*types.Signer]) {
	t.Helper()
	cache, err := NewMetadataCache(nativeMeta, 0, nil, log.Nop(), nil)
	require.NoError(t, err)
	selected := stream.NewFeed[*types.Signer]()
	return NewPipeline(idx, chain, cache, iconBase, selected, log.Nop(), nil), selected
}

func symbols(tokens []types.Token) []string {
	out := make([]string, len(tokens))
	for i, tk := range tokens {
		out[i] = tk.Symbol
	}
	return out
}

func TestPipeline_NativeFirst(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"), meta("0xB", "TKB"))
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(1000)})

	tokens := p.Process(context.Background(), "S1", []types.Holding{
		{TokenAddress: "0xA", Balance: "5"},
		{TokenAddress: nativeMeta.Address, Balance: "1"},
		{TokenAddress: "0xB", Balance: "7"},
	})
	require.Equal(t, []string{"REEF", "TKA", "TKB"}, symbols(tokens))
	assert.Equal(t, int64(1000), tokens[0].Balance.Int64(), "native balance comes from the chain")
}

func TestPipeline_CacheMonotonic(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"), meta("0xB", "TKB"), meta("0xC", "TKC"))
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(1)})
	ctx := context.Background()

	p.Process(ctx, "S1", []types.Holding{{TokenAddress: "0xA", Balance: "1"}, {TokenAddress: "0xB", Balance: "1"}})
	p.Process(ctx, "S1", []types.Holding{{TokenAddress: "0xA", Balance: "2"}, {TokenAddress: "0xB", Balance: "2"}})
	tokens := p.Process(ctx, "S2", []types.Holding{
		{TokenAddress: "0xB", Balance: "3"},
		{TokenAddress: "0xC", Balance: "3"},
		{TokenAddress: nativeMeta.Address, Balance: "3"},
	})

	require.Len(t, idx.queries, 2)
	assert.Equal(t, []string{"0xA", "0xB"}, idx.queries[0])
	assert.Equal(t, []string{"0xC"}, idx.queries[1], "only cache misses are fetched")
	assert.Equal(t, []string{"REEF", "TKB", "TKC"}, symbols(tokens))
}

func TestPipeline_BoundedCacheSmallerThanHoldings(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"), meta("0xB", "TKB"), meta("0xC", "TKC"))
	cache, err := NewMetadataCache(nativeMeta, 1, nil, log.Nop(), nil)
	require.NoError(t, err)
	p := NewPipeline(idx, fakeChain{bal: big.NewInt(1)}, cache, iconBase, stream.NewFeed[*types.Signer](), log.Nop(), nil)

	tokens := p.Process(context.Background(), "S1", []types.Holding{
		{TokenAddress: "0xA", Balance: "1"},
		{TokenAddress: "0xB", Balance: "2"},
		{TokenAddress: "0xC", Balance: "3"},
	})
	assert.Equal(t, []string{"REEF", "TKA", "TKB", "TKC"}, symbols(tokens), "evicted entries still join this cycle")
	assert.Equal(t, 2, cache.Len())
}

func TestPipeline_ExponentBalance(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"), meta("0xB", "TKB"))
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(1)})

	tokens := p.Process(context.Background(), "S1", []types.Holding{
		{TokenAddress: "0xA", Balance: "1.23e+5"},
		{TokenAddress: "0xB", Balance: "0.5"},
	})
	require.Equal(t, []string{"REEF", "TKA"}, symbols(tokens), "non-integer balance is dropped")
	assert.Equal(t, int64(123000), tokens[1].Balance.Int64())
}

func TestPipeline_NativeSynthesized(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"))
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(42)})

	tokens := p.Process(context.Background(), "S1", []types.Holding{{TokenAddress: "0xA", Balance: "9"}})
	require.Equal(t, []string{"REEF", "TKA"}, symbols(tokens))
	assert.Equal(t, int64(42), tokens[0].Balance.Int64())
}

func TestPipeline_NativeFetchFailureKeepsIndexed(t *testing.T) {
	idx := newFakeIndexer()
	p, _ := newPipeline(t, idx, fakeChain{err: errors.New("rpc down")})

	tokens := p.Process(context.Background(), "S1", []types.Holding{{TokenAddress: nativeMeta.Address, Balance: "77"}})
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(77), tokens[0].Balance.Int64())

	tokens = p.Process(context.Background(), "S1", nil)
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(0), tokens[0].Balance.Int64(), "absent native falls back to zero")
}

func TestPipeline_MetadataFailureDropsHoldings(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"))
	idx.failMeta = errors.New("indexer unavailable")
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(1)})
	ctx := context.Background()

	tokens := p.Process(ctx, "S1", []types.Holding{{TokenAddress: "0xA", Balance: "1"}})
	assert.Equal(t, []string{"REEF"}, symbols(tokens))

	idx.mu.Lock()
	idx.failMeta = nil
	idx.mu.Unlock()
	tokens = p.Process(ctx, "S1", []types.Holding{{TokenAddress: "0xA", Balance: "1"}})
	assert.Equal(t, []string{"REEF", "TKA"}, symbols(tokens), "miss is retried on the next batch")
}

func TestPipeline_DefaultIcon(t *testing.T) {
	withIcon := meta("0xA", "TKA")
	withIcon.IconURL = "https://cdn.example.org/a.png"
	idx := newFakeIndexer(withIcon, meta("0xB", "TKB"))
	p, _ := newPipeline(t, idx, fakeChain{bal: big.NewInt(1)})

	tokens := p.Process(context.Background(), "S1", []types.Holding{
		{TokenAddress: "0xA", Balance: "1"},
		{TokenAddress: "0xB", Balance: "1"},
	})
	require.Len(t, tokens, 3)
	assert.Equal(t, withIcon.IconURL, tokens[1].IconURL)
	assert.Equal(t, DefaultIconURL(iconBase, "0xB"), tokens[2].IconURL)
	assert.Equal(t, DefaultIconURL(iconBase, "0xb"), tokens[2].IconURL, "icon is case-insensitive")
	assert.NotEqual(t, DefaultIconURL(iconBase, "0xA"), tokens[2].IconURL)
}

func TestSortNativeFirst(t *testing.T) {
	tk := func(addr string) types.Token { return types.Token{TokenMetadata: types.TokenMetadata{Address: addr}} }
	in := []types.Token{tk("A"), tk("N"), tk("B")}

	out := SortNativeFirst(in, "N")
	assert.Equal(t, "N", out[0].Address)
	assert.Equal(t, "A", out[1].Address)
	assert.Equal(t, "B", out[2].Address)
	assert.Equal(t, "A", in[0].Address, "input is not modified")

	out = SortNativeFirst([]types.Token{tk("A")}, "N")
	assert.Equal(t, "A", out[0].Address)
}

func TestPipeline_RunFollowsSelectedSigner(t *testing.T) {
	idx := newFakeIndexer(meta("0xA", "TKA"))
	p, selected := newPipeline(t, idx, fakeChain{bal: big.NewInt(5)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	subscribed := func(n int) func() bool {
		return func() bool {
			idx.mu.Lock()
			defer idx.mu.Unlock()
			return len(idx.subs) == n
		}
	}

	selected.Send(&types.Signer{Address: "S1"})
	require.Eventually(t, subscribed(1), time.Second, 5*time.Millisecond)

	idx.push("S1", []types.Holding{{TokenAddress: "0xA", Balance: "3"}})
	require.Eventually(t, func() bool {
		v, ok := p.Tokens().Latest()
		return ok && len(v) == 2
	}, time.Second, 5*time.Millisecond)

	// Same address again does not resubscribe.
	selected.Send(&types.Signer{Address: "S1", Name: "renamed"})
	selected.Send(&types.Signer{Address: "S2"})
	require.Eventually(t, subscribed(2), time.Second, 5*time.Millisecond)

	// Reports for the previous signer are ignored.
	idx.push("S1", []types.Holding{{TokenAddress: "0xA", Balance: "9"}})
	idx.push("S2", []types.Holding{})
	require.Eventually(t, func() bool {
		v, _ := p.Tokens().Latest()
		return len(v) == 1 && v[0].Symbol == "REEF"
	}, time.Second, 5*time.Millisecond)

	selected.Send(nil)
	require.Eventually(t, func() bool {
		v, _ := p.Tokens().Latest()
		return len(v) == 0
	}, time.Second, 5*time.Millisecond)
}
