package views

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Indexer is the part of the indexing service the views subscribe to.
type Indexer interface {
	SubscribePools(ctx context.Context, fn func([]types.PoolReserves)) (func(), error)
	SubscribeNFTHoldings(ctx context.Context, address string, fn func([]types.NFT)) (func(), error)
	SubscribeTransfers(ctx context.Context, address, evmAddress string, fn func([]types.Transfer)) (func(), error)
}

// Config holds the static inputs of the views.
type Config struct {
	NativeAddress string
	// Validated is the curated token list merged into the available tokens.
	Validated []types.Token
}

// Views recomputes every derived view when one of its inputs changes.
type Views struct {
	cfg      Config
	indexer  Indexer
	tokens   *stream.Feed[[]types.Token]
	selected *stream.Feed[*types.Signer]
	prices   *stream.Feed[decimal.Decimal]
	logger   zerolog.Logger

	rawPools    *stream.Feed[[]types.PoolReserves]
	available   *stream.Feed[[]types.Token]
	pools       *stream.Feed[[]types.PoolReserves]
	tokenPrices *stream.Feed[[]TokenWithPrice]
	nfts        *stream.Feed[[]types.NFT]
	transfers   *stream.Feed[[]types.Transfer]

	gen atomic.Uint64
}

// New creates the derived views. prices may be nil, in which case every
// price is zero.
func New(cfg Config, indexer Indexer, tokens *stream.Feed[[]types.Token], selected *stream.Feed[*types.Signer], prices *stream.Feed[decimal.Decimal], logger zerolog.Logger) *Views {
	return &Views{
		cfg:         cfg,
		indexer:     indexer,
		tokens:      tokens,
		selected:    selected,
		prices:      prices,
		logger:      logger,
		rawPools:    stream.NewFeed[[]types.PoolReserves](),
		available:   stream.NewFeed[[]types.Token](),
		pools:       stream.NewFeed[[]types.PoolReserves](),
		tokenPrices: stream.NewFeed[[]TokenWithPrice](),
		nfts:        stream.NewFeed[[]types.NFT](),
		transfers:   stream.NewFeed[[]types.Transfer](),
	}
}

// AvailableTokens returns signer tokens plus validated tokens.
func (v *Views) AvailableTokens() *stream.Feed[[]types.Token] { return v.available }

// Pools returns the pools whose both tokens are available.
func (v *Views) Pools() *stream.Feed[[]types.PoolReserves] { return v.pools }

// TokenPrices returns the available tokens with USD prices.
func (v *Views) TokenPrices() *stream.Feed[[]TokenWithPrice] { return v.tokenPrices }

// NFTs returns the NFT holdings of the selected signer.
func (v *Views) NFTs() *stream.Feed[[]types.NFT] { return v.nfts }

// Transfers returns the recent transfers of the selected signer.
func (v *Views) Transfers() *stream.Feed[[]types.Transfer] { return v.transfers }

// Run keeps every view current until ctx is cancelled. A subscription that
// cannot be established stops only the views built on it.
func (v *Views) Run(ctx context.Context) error {
	defer func() {
		v.available.Close()
		v.pools.Close()
		v.tokenPrices.Close()
		v.nfts.Close()
		v.transfers.Close()
		v.rawPools.Close()
	}()

	havePools := true
	stopPools, err := v.indexer.SubscribePools(ctx, v.rawPools.Send)
	if err != nil {
		v.logger.Error().Err(err).Msg("Pool reserves unavailable")
		havePools = false
		v.pools.Close()
	} else {
		defer stopPools()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.runCombine(gctx, havePools) })
	g.Go(func() error {
		err := v.runSigner(gctx)
		if err != nil && gctx.Err() == nil {
			v.logger.Error().Err(err).Msg("Signer views unavailable")
			v.nfts.Close()
			v.transfers.Close()
			return nil
		}
		return err
	})
	return g.Wait()
}

// runCombine recomputes available tokens, pools and prices. Without a pool
// subscription prices fall back to the native price only.
func (v *Views) runCombine(ctx context.Context, havePools bool) error {
	tokSub := v.tokens.Subscribe()
	defer tokSub.Unsubscribe()
	poolSub := v.rawPools.Subscribe()
	defer poolSub.Unsubscribe()

	var priceCh <-chan decimal.Decimal
	if v.prices != nil {
		priceSub := v.prices.Subscribe()
		defer priceSub.Unsubscribe()
		priceCh = priceSub.C()
	}

	var (
		signerTokens []types.Token
		rawPools     []types.PoolReserves
		price        = decimal.Zero
		haveTokens   bool
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-tokSub.C():
			if !ok {
				return nil
			}
			signerTokens, haveTokens = t, true
		case p, ok := <-poolSub.C():
			if !ok {
				return nil
			}
			rawPools = p
		case p, ok := <-priceCh:
			if !ok {
				priceCh = nil
				continue
			}
			price = p
		}
		if !haveTokens {
			continue
		}

		available := CombineTokensDistinct(signerTokens, v.cfg.Validated)
		pools := FilterPools(rawPools, available)
		v.available.Send(available)
		if havePools {
			v.pools.Send(pools)
		}
		v.tokenPrices.Send(PriceTokens(available, v.cfg.NativeAddress, price, pools))
	}
}

// runSigner keeps the NFT and transfer subscriptions on the selected
// signer, switching only when its address or EVM address changes.
func (v *Views) runSigner(ctx context.Context) error {
	sub := v.selected.Subscribe()
	defer sub.Unsubscribe()

	var (
		addr, evm string
		started   bool
		stops     []func()
	)
	teardown := func() {
		v.gen.Add(1)
		for _, stop := range stops {
			stop()
		}
		stops = nil
	}
	defer teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-sub.C():
			if !ok {
				return nil
			}
			nextAddr, nextEvm := "", ""
			if s != nil {
				nextAddr, nextEvm = s.Address, s.EvmAddress
			}
			if started && nextAddr == addr && nextEvm == evm {
				continue
			}
			started = true
			teardown()
			addr, evm = nextAddr, nextEvm

			if addr == "" {
				v.nfts.Send([]types.NFT{})
				v.transfers.Send([]types.Transfer{})
				continue
			}

			gen := v.gen.Load()
			stopNFT, err := v.indexer.SubscribeNFTHoldings(ctx, addr, func(n []types.NFT) {
				if v.gen.Load() == gen {
					v.nfts.Send(n)
				}
			})
			if err != nil {
				return fmt.Errorf("subscribe nft holdings: %w", err)
			}
			stops = append(stops, stopNFT)

			stopTr, err := v.indexer.SubscribeTransfers(ctx, addr, evm, func(tr []types.Transfer) {
				if v.gen.Load() == gen {
					v.transfers.Send(tr)
				}
			})
			if err != nil {
				return fmt.Errorf("subscribe transfers: %w", err)
			}
			stops = append(stops, stopTr)
			v.logger.Debug().Str("address", addr).Msg("Signer views switched")
		}
	}
}
