// Package balances keeps exactly one live chain balance subscription for
// the current signer address set.
package balances

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Chain opens balance subscriptions.
type Chain interface {
	SubscribeBalances(ctx context.Context, addresses []string, fn func([]types.AddressBalance)) (func(), error)
}

// Snapshot is one balance push together with the signer list the
// subscription was opened for.
type Snapshot struct {
	Balances []types.AddressBalance
	Signers  []*types.Signer
}

// Manager switches the chain subscription whenever the address set of the
// signer list changes. Each subscription publishes on its own feed; the
// manager announces the newest feed on Channels.
type Manager struct {
	chain   Chain
	signers *stream.Feed[[]*types.Signer]
	logger  zerolog.Logger
	metrics *metrics.Collector

	channels *stream.Feed[*stream.Feed[Snapshot]]

	// Owned by Run.
	active  []string
	have    bool
	current *stream.Feed[Snapshot]
	unsub   func()
}

// New creates a manager driven by the given signer list feed.
func New(chain Chain, signers *stream.Feed[[]*types.Signer], logger zerolog.Logger, m *metrics.Collector) *Manager {
	return &Manager{
		chain:    chain,
		signers:  signers,
		logger:   logger,
		metrics:  m,
		channels: stream.NewFeed[*stream.Feed[Snapshot]](),
	}
}

// Channels returns the feed announcing each new subscription's snapshot
// feed. Consumers should follow only the newest one, see Follow.
func (m *Manager) Channels() *stream.Feed[*stream.Feed[Snapshot]] {
	return m.channels
}

// Follow calls fn for every snapshot of the newest subscription.
func (m *Manager) Follow(ctx context.Context, fn func(Snapshot)) {
	stream.Follow(ctx, m.channels, fn)
}

// Run tracks the signer feed until ctx is cancelled. A subscription that
// cannot be established ends Run with its error; there is no retry.
func (m *Manager) Run(ctx context.Context) error {
	sub := m.signers.Subscribe()
	defer sub.Unsubscribe()
	defer m.teardown()
	defer m.channels.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case list, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := m.handle(ctx, list); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) handle(ctx context.Context, list []*types.Signer) error {
	addrs := types.DistinctAddresses(list)
	if m.have && types.SameAddressSet(m.active, addrs) {
		return nil
	}

	m.teardown()
	m.active, m.have = addrs, true

	feed := stream.NewFeed[Snapshot]()
	signers := types.CloneSigners(list)

	if len(addrs) == 0 {
		feed.Send(Snapshot{Signers: signers})
		m.current = feed
		m.channels.Send(feed)
		m.metrics.Subscription("subscribe", 0)
		return nil
	}

	unsub, err := m.chain.SubscribeBalances(ctx, addrs, func(balances []types.AddressBalance) {
		feed.Send(Snapshot{Balances: balances, Signers: signers})
	})
	if err != nil {
		feed.Close()
		m.metrics.Subscription("failed", 0)
		return fmt.Errorf("subscribe balances for %d addresses: %w", len(addrs), err)
	}

	m.current = feed
	m.unsub = unsub
	m.channels.Send(feed)
	m.metrics.Subscription("subscribe", len(addrs))
	m.logger.Debug().Int("addresses", len(addrs)).Msg("Balance subscription switched")
	return nil
}

// teardown cancels the active subscription and closes its feed so late
// pushes from it are discarded.
func (m *Manager) teardown() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
		m.metrics.Subscription("unsubscribe", 0)
	}
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}
