// Package signers owns the canonical signer list. It folds the injected
// accounts, locally requested refreshes, chain balance pushes and indexer
// binding pushes into one deduplicated list.
package signers

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// maxConcurrentFetches bounds the per-signer fetches of one batch.
const maxConcurrentFetches = 8

// Chain is the subset of the chain client the engine queries.
type Chain interface {
	FreeBalance(ctx context.Context, address string) (*big.Int, error)
	IsClaimed(ctx context.Context, address string) (bool, error)
}

type fetched struct {
	signer  *types.Signer
	balance bool
	claim   bool
}

type batchResult struct {
	items []fetched
}

// Engine merges all signer sources. All state below the channels is owned
// by the Run goroutine.
type Engine struct {
	chain   Chain
	updates <-chan types.UpdateContext
	logger  zerolog.Logger
	metrics *metrics.Collector

	injectCh chan []*types.Signer
	chainCh  chan []types.AddressBalance
	bindCh   chan []types.AccountBinding
	results  chan batchResult
	done     chan struct{}

	out      *stream.Feed[[]*types.Signer]
	injected *stream.Feed[[]*types.Signer]

	list        []*types.Signer
	balances    map[string]*big.Int
	bindings    map[string]Binding
	indexerPrev map[string]Binding
	visible     []*types.Signer
	emitted     bool

	wg sync.WaitGroup
}

// New creates a signer merge engine. updates may be nil.
func New(chain Chain, updates <-chan types.UpdateContext, logger zerolog.Logger, m *metrics.Collector) *Engine {
	return &Engine{
		chain:       chain,
		updates:     updates,
		logger:      logger,
		metrics:     m,
		injectCh:    make(chan []*types.Signer, 16),
		chainCh:     make(chan []types.AddressBalance, 16),
		bindCh:      make(chan []types.AccountBinding, 16),
		results:     make(chan batchResult, 16),
		done:        make(chan struct{}),
		out:         stream.NewFeed[[]*types.Signer](),
		injected:    stream.NewFeed[[]*types.Signer](),
		balances:    make(map[string]*big.Int),
		bindings:    make(map[string]Binding),
		indexerPrev: make(map[string]Binding),
	}
}

// Signers returns the feed of merged signer lists. Every value is a fresh
// clone owned by the receiver.
func (e *Engine) Signers() *stream.Feed[[]*types.Signer] {
	return e.out
}

// Injected returns the feed of deduplicated injected lists. It drives the
// balance subscription and the indexer binding subscription.
func (e *Engine) Injected() *stream.Feed[[]*types.Signer] {
	return e.injected
}

// SetSigners replaces the injected signer list.
func (e *Engine) SetSigners(list []*types.Signer) {
	select {
	case e.injectCh <- types.CloneSigners(list):
	case <-e.done:
	}
}

// PushBalances delivers a chain balance snapshot.
func (e *Engine) PushBalances(balances []types.AddressBalance) {
	select {
	case e.chainCh <- balances:
	case <-e.done:
	}
}

// PushBindings delivers an indexer account binding report.
func (e *Engine) PushBindings(records []types.AccountBinding) {
	select {
	case e.bindCh <- records:
	case <-e.done:
	}
}

// Run processes events until ctx is cancelled. Output feeds are closed on
// return.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		close(e.done)
		e.wg.Wait()
		e.out.Close()
		e.injected.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case list := <-e.injectCh:
			e.handleInjected(list)
		case uc, ok := <-e.updates:
			if !ok {
				e.updates = nil
				continue
			}
			e.handleUpdate(ctx, uc)
		case res := <-e.results:
			e.handleResult(res)
		case pushed := <-e.chainCh:
			e.handleChain(pushed)
		case records := <-e.bindCh:
			e.handleBindings(records)
		}
	}
}

func (e *Engine) handleInjected(list []*types.Signer) {
	e.list = Dedupe(list)
	if dropped := len(list) - len(e.list); dropped > 0 {
		e.logger.Warn().Int("dropped", dropped).Msg("Duplicate signer addresses in injected list")
	}

	keep := make(map[string]struct{}, len(e.list))
	for _, s := range e.list {
		keep[s.Address] = struct{}{}
	}
	for addr := range e.balances {
		if _, ok := keep[addr]; !ok {
			delete(e.balances, addr)
		}
	}
	for addr := range e.bindings {
		if _, ok := keep[addr]; !ok {
			delete(e.bindings, addr)
		}
	}
	for addr := range e.indexerPrev {
		if _, ok := keep[addr]; !ok {
			delete(e.indexerPrev, addr)
		}
	}

	e.injected.Send(types.CloneSigners(e.list))
	e.publish()
}

func (e *Engine) handleUpdate(ctx context.Context, uc types.UpdateContext) {
	if uc.Empty() {
		return
	}
	latest := Overlay(e.list, e.balances, e.bindings)

	targets := make(map[string]*fetched)
	var order []string
	for _, kind := range []types.DataKind{types.NativeBalance, types.EvmBinding} {
		for _, s := range SignersToUpdate(kind, uc, latest) {
			f, ok := targets[s.Address]
			if !ok {
				f = &fetched{signer: s}
				targets[s.Address] = f
				order = append(order, s.Address)
			}
			switch kind {
			case types.NativeBalance:
				f.balance = true
			case types.EvmBinding:
				f.claim = true
			}
		}
	}
	if len(order) == 0 {
		return
	}

	jobs := make([]fetched, len(order))
	for i, addr := range order {
		jobs[i] = *targets[addr]
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res := batchResult{items: e.fetch(ctx, jobs)}
		select {
		case e.results <- res:
		case <-ctx.Done():
		}
	}()
}

// fetch refreshes every job concurrently. A failed job is logged and left
// out of the result; the rest of the batch is unaffected.
func (e *Engine) fetch(ctx context.Context, jobs []fetched) []fetched {
	ok := make([]bool, len(jobs))
	out := make([]fetched, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, job := range jobs {
		g.Go(func() error {
			s, err := e.fetchOne(gctx, job)
			if err != nil {
				e.logger.Warn().Err(err).Str("address", job.signer.Address).Msg("Signer refresh failed")
				return nil
			}
			out[i] = fetched{signer: s, balance: job.balance, claim: job.claim}
			ok[i] = true
			return nil
		})
	}
	g.Wait()

	res := make([]fetched, 0, len(jobs))
	for i := range out {
		if ok[i] {
			res = append(res, out[i])
		}
	}
	return res
}

func (e *Engine) fetchOne(ctx context.Context, job fetched) (*types.Signer, error) {
	s := job.signer.Clone()
	if job.balance {
		bal, err := e.chain.FreeBalance(ctx, s.Address)
		e.metrics.SignerFetch(types.NativeBalance.String(), err)
		if err != nil {
			return nil, fmt.Errorf("free balance: %w", err)
		}
		s.Balance = bal
	}
	if job.claim {
		var (
			claimed bool
			err     error
		)
		if s.Handle != nil {
			claimed, err = s.Handle.IsClaimed(ctx)
		} else {
			claimed, err = e.chain.IsClaimed(ctx, s.Address)
		}
		e.metrics.SignerFetch(types.EvmBinding.String(), err)
		if err != nil {
			return nil, fmt.Errorf("claim status: %w", err)
		}
		s.IsEvmClaimed = claimed
	}
	return s, nil
}

// handleResult records the fetched fields only. Name and handle always come
// from the current injected list. Addresses removed while the fetch was in
// flight are skipped.
func (e *Engine) handleResult(res batchResult) {
	updated := 0
	for _, it := range res.items {
		if types.FindSigner(e.list, it.signer.Address) == nil {
			continue
		}
		updated++
		if it.balance {
			e.balances[it.signer.Address] = it.signer.BalanceOrZero()
		}
		if it.claim {
			e.bindings[it.signer.Address] = Binding{
				EvmAddress: it.signer.EvmAddress,
				Claimed:    it.signer.IsEvmClaimed,
			}
		}
	}
	if updated == 0 {
		return
	}
	e.logger.Debug().Int("updated", updated).Msg("Applied local signer refresh")
	e.publish()
}

func (e *Engine) handleChain(pushed []types.AddressBalance) {
	changed := MergeBalances(e.visible, pushed)
	if len(changed) == 0 {
		return
	}
	for addr, bal := range changed {
		e.balances[addr] = bal
	}
	e.publish()
}

func (e *Engine) handleBindings(records []types.AccountBinding) {
	changed := ChangedBindings(records, e.indexerPrev, func(addr string) (Binding, bool) {
		s := types.FindSigner(e.list, addr)
		if s == nil {
			return Binding{}, false
		}
		return Binding{EvmAddress: s.EvmAddress, Claimed: s.IsEvmClaimed}, true
	})
	if len(changed) == 0 {
		return
	}
	for addr, b := range changed {
		e.bindings[addr] = b
	}
	e.publish()
}

// publish emits the visible list when it differs from the last emission.
func (e *Engine) publish() {
	next := Overlay(e.list, e.balances, e.bindings)
	if e.emitted && Equal(next, e.visible) {
		return
	}
	e.visible = next
	e.emitted = true
	e.out.Send(types.CloneSigners(next))
	e.metrics.SignersEmitted()
}
