// Package chain is the chain node client of the state layer: free balance
// queries and subscriptions, and EVM claim status.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/amount"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// RPC method names.
const (
	MethodFreeBalance      = "account_freeBalance"
	MethodIsClaimed        = "evm_isClaimed"
	MethodSubscribeFree    = "balances_subscribeFree"
	MethodUnsubscribeFree  = "balances_unsubscribeFree"
	unsubscribeCallTimeout = 5 * time.Second
)

// Caller is the RPC transport the client needs.
type Caller interface {
	Call(ctx context.Context, method string, params, result interface{}) error
	Subscribe(ctx context.Context, method string, params interface{}, fn func(json.RawMessage)) (string, error)
	Unsubscribe(ctx context.Context, method, id string) error
}

var _ Caller = (*rpcclient.Client)(nil)

// Client queries a chain node.
type Client struct {
	rpc    Caller
	logger zerolog.Logger
}

// New creates a chain client over an RPC transport.
func New(rpc Caller, logger zerolog.Logger) *Client {
	return &Client{rpc: rpc, logger: logger}
}

type freeEntry struct {
	Address string `json:"address"`
	Free    string `json:"free"`
}

// FreeBalance returns the free native balance of address.
func (c *Client) FreeBalance(ctx context.Context, address string) (*big.Int, error) {
	var s string
	if err := c.rpc.Call(ctx, MethodFreeBalance, []string{address}, &s); err != nil {
		return nil, fmt.Errorf("free balance of %s: %w", address, err)
	}
	v, err := amount.ParseBalance(s)
	if err != nil {
		return nil, fmt.Errorf("free balance of %s: %w", address, err)
	}
	return v, nil
}

// IsClaimed reports whether address has a bound EVM account.
func (c *Client) IsClaimed(ctx context.Context, address string) (bool, error) {
	var claimed bool
	if err := c.rpc.Call(ctx, MethodIsClaimed, []string{address}, &claimed); err != nil {
		return false, fmt.Errorf("claim status of %s: %w", address, err)
	}
	return claimed, nil
}

// SubscribeBalances watches the free balances of addresses. fn receives
// one snapshot per push, in the order of addresses; entries the node did
// not report are omitted and malformed values are skipped. fn must not
// block. The returned func cancels the subscription.
func (c *Client) SubscribeBalances(ctx context.Context, addresses []string, fn func([]types.AddressBalance)) (func(), error) {
	id, err := c.rpc.Subscribe(ctx, MethodSubscribeFree, [][]string{addresses}, func(raw json.RawMessage) {
		var entries []freeEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed balance notification")
			return
		}
		fn(orderBalances(addresses, entries, c.logger))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe balances: %w", err)
	}
	c.logger.Debug().Str("subscription", id).Int("addresses", len(addresses)).Msg("Balance subscription opened")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeCallTimeout)
		defer cancel()
		if err := c.rpc.Unsubscribe(ctx, MethodUnsubscribeFree, id); err != nil {
			c.logger.Debug().Err(err).Str("subscription", id).Msg("Balance unsubscribe failed")
		}
	}, nil
}

func orderBalances(addresses []string, entries []freeEntry, logger zerolog.Logger) []types.AddressBalance {
	byAddr := make(map[string]*big.Int, len(entries))
	for _, e := range entries {
		v, err := amount.ParseBalance(e.Free)
		if err != nil {
			logger.Debug().Err(err).Str("address", e.Address).Msg("Skipping malformed balance")
			continue
		}
		byAddr[e.Address] = v
	}
	out := make([]types.AddressBalance, 0, len(addresses))
	for _, a := range addresses {
		if v, ok := byAddr[a]; ok {
			out = append(out, types.AddressBalance{Address: a, Balance: v})
		}
	}
	return out
}
