// Package node wires the state components into one running unit that can
// be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-dexstate/internal/balances"
	klog "github.com/Klingon-tech/klingnet-dexstate/internal/log"
	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/internal/prefs"
	"github.com/Klingon-tech/klingnet-dexstate/internal/selection"
	"github.com/Klingon-tech/klingnet-dexstate/internal/signers"
	"github.com/Klingon-tech/klingnet-dexstate/internal/storage"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/internal/token"
	"github.com/Klingon-tech/klingnet-dexstate/internal/updates"
	"github.com/Klingon-tech/klingnet-dexstate/internal/views"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Chain is everything the state needs from the chain node.
type Chain interface {
	signers.Chain
	balances.Chain
}

// Indexer is everything the state needs from the indexing service.
type Indexer interface {
	signers.BindingSource
	token.Indexer
	views.Indexer
}

// Options configures the state.
type Options struct {
	Native      types.TokenMetadata
	IconBaseURL string
	// CacheSize bounds the metadata cache; 0 keeps every entry.
	CacheSize int
	// Validated tokens are always part of the available token list.
	Validated []types.Token
	// Prices is the native USD price feed. Nil prices every token at zero.
	Prices *stream.Feed[decimal.Decimal]
}

// State owns every component of the state layer.
type State struct {
	chain   Chain
	indexer Indexer
	logger  zerolog.Logger

	queue    *updates.Queue
	toEngine chan types.UpdateContext
	engine   *signers.Engine
	balances *balances.Manager
	tracker  *selection.Tracker
	tokens   *token.Pipeline
	views    *views.Views
}

// New builds the state on top of db. Components are created but nothing
// runs until Run.
func New(db storage.DB, chain Chain, indexer Indexer, opts Options, m *metrics.Collector) (*State, error) {
	cache, err := token.NewMetadataCache(opts.Native, opts.CacheSize, token.NewStore(db), klog.Tokens, m)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	if n, err := cache.Load(); err != nil {
		return nil, fmt.Errorf("load token metadata: %w", err)
	} else if n > 0 {
		klog.Tokens.Debug().Int("entries", n).Msg("Token metadata restored")
	}

	s := &State{
		chain:    chain,
		indexer:  indexer,
		logger:   klog.WithComponent("state"),
		queue:    updates.NewQueue(klog.Signers, m),
		toEngine: make(chan types.UpdateContext, 16),
	}
	s.engine = signers.New(chain, s.toEngine, klog.Signers, m)
	s.balances = balances.New(chain, s.engine.Injected(), klog.Balances, m)
	s.tracker = selection.New(prefs.NewStore(db), s.engine.Signers(), klog.Selection)
	s.tokens = token.NewPipeline(indexer, chain, cache, opts.IconBaseURL, s.tracker.Selected(), klog.Tokens, m)
	s.views = views.New(views.Config{
		NativeAddress: opts.Native.Address,
		Validated:     opts.Validated,
	}, indexer, s.tokens.Tokens(), s.tracker.Selected(), opts.Prices, klog.Views)
	return s, nil
}

// SetSigners replaces the injected signer list.
func (s *State) SetSigners(list []*types.Signer) {
	s.engine.SetSigners(list)
}

// Select makes address the selected signer and persists the choice.
func (s *State) Select(address string) {
	s.tracker.Select(address)
}

// RequestUpdate asks for a refresh of kinds for addresses, or for every
// signer when no address is given.
func (s *State) RequestUpdate(kinds []types.DataKind, addresses ...string) {
	s.queue.Request(kinds, addresses...)
}

// Signers returns the merged signer list feed.
func (s *State) Signers() *stream.Feed[[]*types.Signer] { return s.engine.Signers() }

// Selected returns the selected signer feed.
func (s *State) Selected() *stream.Feed[*types.Signer] { return s.tracker.Selected() }

// Tokens returns the selected signer's token list feed.
func (s *State) Tokens() *stream.Feed[[]types.Token] { return s.tokens.Tokens() }

// Views returns the derived views.
func (s *State) Views() *views.Views { return s.views }

// Run starts every component and blocks until ctx is cancelled. The
// components that hold chain or indexer subscriptions fail independently:
// their error is logged, their output stops, and everything else keeps
// running.
func (s *State) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.queue.Run(gctx) })
	g.Go(func() error { return s.route(gctx) })
	g.Go(func() error { return s.engine.Run(gctx) })
	g.Go(func() error { return s.tracker.Run(gctx) })

	g.Go(s.isolated(gctx, "balances", s.balances.Run))
	g.Go(func() error {
		s.balances.Follow(gctx, func(snap balances.Snapshot) {
			s.engine.PushBalances(snap.Balances)
		})
		return nil
	})
	g.Go(s.isolated(gctx, "bindings", func(ctx context.Context) error {
		return s.engine.RunBindings(ctx, s.indexer)
	}))
	g.Go(s.isolated(gctx, "tokens", s.tokens.Run))
	g.Go(s.isolated(gctx, "views", s.views.Run))

	s.logger.Info().Msg("State started")
	err := g.Wait()
	s.logger.Info().Err(err).Msg("State stopped")
	return err
}

// isolated runs fn without letting its failure stop the other components.
func (s *State) isolated(ctx context.Context, name string, fn func(context.Context) error) func() error {
	return func() error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Str("component", name).Msg("Component stopped, its data is unavailable")
		}
		return nil
	}
}

// route forwards queued update contexts to the signer engine and turns
// token holding requests into a pipeline refresh.
func (s *State) route(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case uc, ok := <-s.queue.C():
			if !ok {
				return nil
			}
			if uc.Has(types.TokenHoldings) {
				s.tokens.Refresh()
			}
			if !uc.Has(types.NativeBalance) && !uc.Has(types.EvmBinding) {
				continue
			}
			select {
			case s.toEngine <- uc:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ValidatedTokens resolves curated token addresses into zero-balance tokens.
// Addresses without contract data are skipped.
func ValidatedTokens(ctx context.Context, indexer token.Indexer, addresses []string, iconBase string) ([]types.Token, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	metas, err := indexer.ContractData(ctx, addresses)
	if err != nil {
		return nil, fmt.Errorf("resolve validated tokens: %w", err)
	}
	byAddr := make(map[string]types.TokenMetadata, len(metas))
	for _, m := range metas {
		byAddr[strings.ToLower(m.Address)] = m
	}
	out := make([]types.Token, 0, len(addresses))
	for _, addr := range addresses {
		meta, ok := byAddr[strings.ToLower(addr)]
		if !ok {
			continue
		}
		out = append(out, types.Token{TokenMetadata: token.WithDefaultIcon(meta, iconBase), Balance: new(big.Int)})
	}
	return out, nil
}
