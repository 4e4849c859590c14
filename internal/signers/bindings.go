package signers

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// BindingSource streams indexed account bindings for a set of addresses.
type BindingSource interface {
	SubscribeBindings(ctx context.Context, addresses []string, fn func([]types.AccountBinding)) (func(), error)
}

// RunBindings keeps one indexer binding subscription open for the current
// injected address set and feeds its reports into the engine. It
// resubscribes when the set changes and returns on ctx cancellation or when
// a subscription cannot be established.
func (e *Engine) RunBindings(ctx context.Context, src BindingSource) error {
	sub := e.injected.Subscribe()
	defer sub.Unsubscribe()

	var (
		active []string
		unsub  func()
		have   bool
	)
	defer func() {
		if unsub != nil {
			unsub()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case list, ok := <-sub.C():
			if !ok {
				return nil
			}
			addrs := types.DistinctAddresses(list)
			if have && types.SameAddressSet(active, addrs) {
				continue
			}
			if unsub != nil {
				unsub()
				unsub = nil
			}
			active, have = addrs, true
			if len(addrs) == 0 {
				continue
			}
			u, err := src.SubscribeBindings(ctx, addrs, e.PushBindings)
			if err != nil {
				return fmt.Errorf("subscribe account bindings: %w", err)
			}
			unsub = u
			e.logger.Debug().Int("addresses", len(addrs)).Msg("Subscribed to account bindings")
		}
	}
}
