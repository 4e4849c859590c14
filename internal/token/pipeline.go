package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/amount"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Indexer is the part of the indexing service the pipeline reads.
type Indexer interface {
	SubscribeTokenHoldings(ctx context.Context, address string, fn func([]types.Holding)) (func(), error)
	ContractData(ctx context.Context, addresses []string) ([]types.TokenMetadata, error)
}

// Chain provides the authoritative native balance.
type Chain interface {
	FreeBalance(ctx context.Context, address string) (*big.Int, error)
}

type holdingsEvent struct {
	address  string
	holdings []types.Holding
}

type cycleResult struct {
	address string
	tokens  []types.Token
}

// Pipeline publishes the token list of the selected signer.
type Pipeline struct {
	indexer  Indexer
	chain    Chain
	cache    *MetadataCache
	iconBase string
	selected *stream.Feed[*types.Signer]
	logger   zerolog.Logger
	metrics  *metrics.Collector

	holdingsCh chan holdingsEvent
	results    chan cycleResult
	refreshCh  chan struct{}
	done       chan struct{}
	out        *stream.Feed[[]types.Token]

	// Owned by Run.
	started bool
	address string
	unsub   func()
	last    *holdingsEvent
	busy    bool
	pending *holdingsEvent
	wg      sync.WaitGroup
}

// NewPipeline creates a token balance pipeline driven by the selected
// signer feed.
func NewPipeline(indexer Indexer, chain Chain, cache *MetadataCache, iconBase string, selected *stream.Feed[*types.Signer], logger zerolog.Logger, m *metrics.Collector) *Pipeline {
	return &Pipeline{
		indexer:    indexer,
		chain:      chain,
		cache:      cache,
		iconBase:   iconBase,
		selected:   selected,
		logger:     logger,
		metrics:    m,
		holdingsCh: make(chan holdingsEvent, 16),
		results:    make(chan cycleResult, 1),
		refreshCh:  make(chan struct{}, 1),
		done:       make(chan struct{}),
		out:        stream.NewFeed[[]types.Token](),
	}
}

// Tokens returns the feed of token lists. The native token, when present,
// is always first.
func (p *Pipeline) Tokens() *stream.Feed[[]types.Token] {
	return p.out
}

// Cache returns the metadata cache.
func (p *Pipeline) Cache() *MetadataCache {
	return p.cache
}

// Refresh recomputes the token list from the last holdings report with a
// freshly fetched native balance.
func (p *Pipeline) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run follows the selected signer until ctx is cancelled. A holdings
// subscription that cannot be established ends Run with its error.
func (p *Pipeline) Run(ctx context.Context) error {
	sub := p.selected.Subscribe()
	defer func() {
		sub.Unsubscribe()
		if p.unsub != nil {
			p.unsub()
		}
		close(p.done)
		p.wg.Wait()
		p.out.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := p.handleSelected(ctx, s); err != nil {
				return err
			}
		case ev := <-p.holdingsCh:
			if ev.address != p.address {
				continue
			}
			p.last = &ev
			p.schedule(ctx, ev)
		case <-p.refreshCh:
			if p.last != nil {
				p.schedule(ctx, *p.last)
			}
		case r := <-p.results:
			p.busy = false
			if r.address == p.address {
				p.out.Send(r.tokens)
			}
			if p.pending != nil {
				next := *p.pending
				p.pending = nil
				p.schedule(ctx, next)
			}
		}
	}
}

func (p *Pipeline) handleSelected(ctx context.Context, s *types.Signer) error {
	addr := ""
	if s != nil {
		addr = s.Address
	}
	if p.started && addr == p.address {
		return nil
	}
	p.started = true

	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.address = addr
	p.last = nil
	p.pending = nil

	if addr == "" {
		p.out.Send([]types.Token{})
		return nil
	}

	unsub, err := p.indexer.SubscribeTokenHoldings(ctx, addr, func(h []types.Holding) {
		select {
		case p.holdingsCh <- holdingsEvent{address: addr, holdings: h}:
		case <-p.done:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe token holdings for %s: %w", addr, err)
	}
	p.unsub = unsub
	p.logger.Debug().Str("address", addr).Msg("Following token holdings")
	return nil
}

// schedule runs one cycle at a time; a report arriving while a cycle is in
// flight replaces any report already waiting.
func (p *Pipeline) schedule(ctx context.Context, ev holdingsEvent) {
	if p.busy {
		p.pending = &ev
		return
	}
	p.busy = true
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		tokens := p.Process(ctx, ev.address, ev.holdings)
		select {
		case p.results <- cycleResult{address: ev.address, tokens: tokens}:
		case <-ctx.Done():
		}
	}()
}

// Process runs one full cycle for a holdings report: fetch metadata for
// cache misses in one batch, fetch the native balance, and build the list.
func (p *Pipeline) Process(ctx context.Context, address string, holdings []types.Holding) []types.Token {
	addrs := make([]string, 0, len(holdings))
	for _, h := range holdings {
		addrs = append(addrs, h.TokenAddress)
	}
	resolved, missing := p.cache.Lookup(addrs)
	if len(missing) > 0 {
		metas, err := p.indexer.ContractData(ctx, missing)
		p.metrics.MetadataFetch(err)
		if err != nil {
			p.logger.Warn().Err(err).Int("missing", len(missing)).Msg("Token metadata fetch failed")
		} else {
			p.cache.Merge(metas)
			resolved.Add(metas)
		}
	}

	nativeBal, err := p.chain.FreeBalance(ctx, address)
	if err != nil {
		p.logger.Warn().Err(err).Str("address", address).Msg("Native balance fetch failed, keeping indexed value")
		nativeBal = nil
	}

	return Build(holdings, resolved, p.cache.Native(), nativeBal, p.iconBase, p.logger)
}

// Build joins holdings against the metadata resolved for this cycle. Holdings without metadata
// or with a balance that is not an exact non-negative integer are dropped.
// A non-nil nativeBal overrides or synthesizes the native token; with a nil
// nativeBal the indexed native value is kept, or zero when absent. The
// native token is moved to the front.
func Build(holdings []types.Holding, metas Resolved, native types.TokenMetadata, nativeBal *big.Int, iconBase string, logger zerolog.Logger) []types.Token {
	tokens := make([]types.Token, 0, len(holdings)+1)
	nativeIdx := -1

	for _, h := range holdings {
		meta, ok := metas.Get(h.TokenAddress)
		if !ok && SameAddress(h.TokenAddress, native.Address) {
			meta, ok = native, true
		}
		if !ok {
			continue
		}
		bal, err := amount.ParseBalance(h.Balance)
		if err != nil {
			logger.Debug().Err(err).Str("token", h.TokenAddress).Str("balance", h.Balance).Msg("Dropping holding with invalid balance")
			continue
		}
		if SameAddress(meta.Address, native.Address) {
			if nativeIdx >= 0 {
				continue
			}
			nativeIdx = len(tokens)
		}
		tokens = append(tokens, types.Token{
			TokenMetadata: WithDefaultIcon(meta, iconBase),
			Balance:       bal,
		})
	}

	switch {
	case nativeIdx >= 0 && nativeBal != nil:
		tokens[nativeIdx].Balance = new(big.Int).Set(nativeBal)
	case nativeIdx < 0:
		bal := new(big.Int)
		if nativeBal != nil {
			bal.Set(nativeBal)
		}
		tokens = append(tokens, types.Token{
			TokenMetadata: WithDefaultIcon(native, iconBase),
			Balance:       bal,
		})
	}

	return SortNativeFirst(tokens, native.Address)
}
