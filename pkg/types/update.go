package types

import "fmt"

// DataKind names the piece of account state an update request refreshes.
type DataKind int

const (
	NativeBalance DataKind = iota
	TokenHoldings
	EvmBinding
)

// String returns the kind name used in logs.
func (k DataKind) String() string {
	switch k {
	case NativeBalance:
		return "native_balance"
	case TokenHoldings:
		return "token_holdings"
	case EvmBinding:
		return "evm_binding"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseDataKind returns the kind named by s, as printed by String.
func ParseDataKind(s string) (DataKind, error) {
	for k := NativeBalance; k <= EvmBinding; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown data kind %q", s)
}

// Valid reports whether k is one of the known kinds.
func (k DataKind) Valid() bool {
	return k >= NativeBalance && k <= EvmBinding
}

// UpdateRequest asks for one kind of data to be refreshed. An empty Address
// applies the request to every known signer.
type UpdateRequest struct {
	Kind    DataKind `json:"kind"`
	Address string   `json:"address,omitempty"`
}

// UpdateContext is the ordered batch of requests produced by one trigger,
// for example a completed swap.
type UpdateContext struct {
	Requests []UpdateRequest `json:"requests"`
}

// NewUpdateRequests builds the cross product of kinds and addresses. With no
// addresses every request applies to all signers.
func NewUpdateRequests(kinds []DataKind, addresses ...string) []UpdateRequest {
	if len(addresses) == 0 {
		reqs := make([]UpdateRequest, 0, len(kinds))
		for _, k := range kinds {
			reqs = append(reqs, UpdateRequest{Kind: k})
		}
		return reqs
	}
	reqs := make([]UpdateRequest, 0, len(kinds)*len(addresses))
	for _, addr := range addresses {
		for _, k := range kinds {
			reqs = append(reqs, UpdateRequest{Kind: k, Address: addr})
		}
	}
	return reqs
}

// NewUpdateContext is shorthand for an UpdateContext over NewUpdateRequests.
func NewUpdateContext(kinds []DataKind, addresses ...string) UpdateContext {
	return UpdateContext{Requests: NewUpdateRequests(kinds, addresses...)}
}

// Empty reports whether the context carries no requests.
func (c UpdateContext) Empty() bool {
	return len(c.Requests) == 0
}

// Scope returns the addresses targeted for kind. all is true when at least
// one request of that kind has no address.
func (c UpdateContext) Scope(kind DataKind) (addresses []string, all bool) {
	seen := make(map[string]struct{})
	for _, r := range c.Requests {
		if r.Kind != kind {
			continue
		}
		if r.Address == "" {
			all = true
			continue
		}
		if _, ok := seen[r.Address]; ok {
			continue
		}
		seen[r.Address] = struct{}{}
		addresses = append(addresses, r.Address)
	}
	return addresses, all
}

// Has reports whether any request in the context has the given kind.
func (c UpdateContext) Has(kind DataKind) bool {
	for _, r := range c.Requests {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// KindsFor returns the distinct kinds that apply to address, in request
// order. An empty address matches nothing.
func (c UpdateContext) KindsFor(address string) []DataKind {
	if address == "" {
		return nil
	}
	var kinds []DataKind
	for _, r := range c.Requests {
		if r.Address != "" && r.Address != address {
			continue
		}
		dup := false
		for _, k := range kinds {
			if k == r.Kind {
				dup = true
				break
			}
		}
		if !dup {
			kinds = append(kinds, r.Kind)
		}
	}
	return kinds
}
