package signers

import (
	"math/big"
	"reflect"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// SignersToUpdate selects the signers a batch refreshes for kind: all of
// them when any request of that kind is unscoped, otherwise the ones whose
// address is named.
func SignersToUpdate(kind types.DataKind, uc types.UpdateContext, list []*types.Signer) []*types.Signer {
	addrs, all := uc.Scope(kind)
	if all {
		return list
	}
	if len(addrs) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		want[a] = struct{}{}
	}
	var out []*types.Signer
	for _, s := range list {
		if _, ok := want[s.Address]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Dedupe drops nil entries and every signer whose address was already seen.
func Dedupe(list []*types.Signer) []*types.Signer {
	seen := make(map[string]struct{}, len(list))
	out := make([]*types.Signer, 0, len(list))
	for _, s := range list {
		if s == nil {
			continue
		}
		if _, ok := seen[s.Address]; ok {
			continue
		}
		seen[s.Address] = struct{}{}
		out = append(out, s)
	}
	return out
}

// MergeBalances returns the chain balances that differ numerically from the
// visible signer values. Addresses not in visible are ignored.
func MergeBalances(visible []*types.Signer, pushed []types.AddressBalance) map[string]*big.Int {
	changed := make(map[string]*big.Int)
	for _, ab := range pushed {
		s := types.FindSigner(visible, ab.Address)
		if s == nil || ab.Balance == nil {
			continue
		}
		if types.SameBalance(s.Balance, ab.Balance) {
			continue
		}
		changed[ab.Address] = new(big.Int).Set(ab.Balance)
	}
	return changed
}

// Binding is the EVM binding state of one address.
type Binding struct {
	EvmAddress string
	Claimed    bool
}

// ChangedBindings compares an indexer report against the indexer's own
// previous values. prev holds the last reported binding per address and is
// updated in place; baseline supplies the value assumed before the first
// report. The last record per address in records wins.
func ChangedBindings(records []types.AccountBinding, prev map[string]Binding, baseline func(address string) (Binding, bool)) map[string]Binding {
	latest := make(map[string]Binding, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r.Address == "" {
			continue
		}
		if _, ok := latest[r.Address]; !ok {
			order = append(order, r.Address)
		}
		latest[r.Address] = Binding{EvmAddress: r.EvmAddress, Claimed: r.Claimed()}
	}

	changed := make(map[string]Binding)
	for _, addr := range order {
		b := latest[addr]
		before, ok := prev[addr]
		if !ok {
			before, ok = baseline(addr)
		}
		prev[addr] = b
		if ok && before == b {
			continue
		}
		changed[addr] = b
	}
	return changed
}

// Overlay applies balance and binding overrides to list, cloning every
// signer it changes.
func Overlay(list []*types.Signer, balances map[string]*big.Int, bindings map[string]Binding) []*types.Signer {
	out := make([]*types.Signer, len(list))
	for i, s := range list {
		bal, hasBal := balances[s.Address]
		b, hasBind := bindings[s.Address]
		if !hasBal && !hasBind {
			out[i] = s
			continue
		}
		c := s.Clone()
		if hasBal {
			c.Balance = new(big.Int).Set(bal)
		}
		if hasBind {
			c.IsEvmClaimed = b.Claimed
			if b.EvmAddress != "" {
				c.EvmAddress = b.EvmAddress
			}
		}
		out[i] = c
	}
	return out
}

// Equal reports whether two signer lists are visibly identical. A swapped
// handle counts as a change.
func Equal(a, b []*types.Signer) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Address != y.Address ||
			!sameHandle(x.Handle, y.Handle) ||
			x.Name != y.Name ||
			x.EvmAddress != y.EvmAddress ||
			x.IsEvmClaimed != y.IsEvmClaimed ||
			!types.SameBalance(x.Balance, y.Balance) {
			return false
		}
	}
	return true
}

func sameHandle(a, b types.SignerHandle) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
