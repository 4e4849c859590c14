// Package types defines the shared data model of the state layer: signers,
// update requests, tokens and the indexer records they are built from.
package types

import (
	"context"
	"math/big"
)

// SignerHandle is the capability attached to a signer. It is provided by
// whoever injected the signer (browser extension bridge, local keystore).
type SignerHandle interface {
	// IsClaimed reports whether the account has a bound EVM address.
	IsClaimed(ctx context.Context) (bool, error)
	// Sign signs a 32-byte digest with the account key.
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}

// Signer is a user-controlled chain account plus its cached derived state.
// Signers are treated as immutable snapshots: every change produces a new
// value via Clone, never an in-place mutation of a published instance.
type Signer struct {
	Address      string       `json:"address"`
	Name         string       `json:"name"`
	Balance      *big.Int     `json:"balance"`
	EvmAddress   string       `json:"evmAddress"`
	IsEvmClaimed bool         `json:"isEvmClaimed"`
	Handle       SignerHandle `json:"-"`
}

// Clone returns a shallow copy of the signer with its own balance value.
func (s *Signer) Clone() *Signer {
	if s == nil {
		return nil
	}
	c := *s
	if s.Balance != nil {
		c.Balance = new(big.Int).Set(s.Balance)
	}
	return &c
}

// BalanceOrZero returns the native balance, or zero when it is unknown.
func (s *Signer) BalanceOrZero() *big.Int {
	if s == nil || s.Balance == nil {
		return new(big.Int)
	}
	return s.Balance
}

// SameBalance reports whether a and b hold numerically equal balances.
// A nil balance equals zero.
func SameBalance(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

// CloneSigners clones every signer in list.
func CloneSigners(list []*Signer) []*Signer {
	out := make([]*Signer, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	return out
}

// DistinctAddresses returns the signer addresses in first-seen order with
// duplicates removed.
func DistinctAddresses(list []*Signer) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == nil {
			continue
		}
		if _, ok := seen[s.Address]; ok {
			continue
		}
		seen[s.Address] = struct{}{}
		out = append(out, s.Address)
	}
	return out
}

// FindSigner returns the signer with the given address, or nil.
func FindSigner(list []*Signer, address string) *Signer {
	for _, s := range list {
		if s != nil && s.Address == address {
			return s
		}
	}
	return nil
}

// AddressBalance is one entry of a chain balance snapshot.
type AddressBalance struct {
	Address string   `json:"address"`
	Balance *big.Int `json:"balance"`
}

// AccountBinding is an indexed account record: the EVM address bound to a
// native account, if any.
type AccountBinding struct {
	Address    string `json:"address"`
	EvmAddress string `json:"evmAddress,omitempty"`
}

// Claimed reports whether the record carries a bound EVM address.
func (b AccountBinding) Claimed() bool {
	return b.EvmAddress != ""
}

// SameAddressSet reports whether a and b contain the same distinct
// addresses, ignoring order and duplicates.
func SameAddressSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, x := range a {
		as[x] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, x := range b {
		if _, ok := as[x]; !ok {
			return false
		}
		bs[x] = struct{}{}
	}
	return len(as) == len(bs)
}
