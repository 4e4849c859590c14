// Package token maintains the token view of the selected signer: a
// write-through cache of immutable contract metadata and the pipeline that
// joins indexer holdings against it.
package token

import (
	"encoding/hex"
	"strings"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/crypto"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// DefaultIconURL derives a stable placeholder icon for a token without one.
func DefaultIconURL(base, address string) string {
	h := crypto.HashString(strings.ToLower(address))
	return strings.TrimRight(base, "/") + "/" + hex.EncodeToString(h[:8]) + ".svg"
}

// SameAddress compares token addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// SortNativeFirst moves the native token to index 0, keeping the relative
// order of the others. tokens is not modified.
func SortNativeFirst(tokens []types.Token, nativeAddress string) []types.Token {
	idx := -1
	for i, t := range tokens {
		if SameAddress(t.Address, nativeAddress) {
			idx = i
			break
		}
	}
	out := make([]types.Token, 0, len(tokens))
	if idx <= 0 {
		return append(out, tokens...)
	}
	out = append(out, tokens[idx])
	out = append(out, tokens[:idx]...)
	return append(out, tokens[idx+1:]...)
}

// WithDefaultIcon fills in the derived icon when meta has none.
func WithDefaultIcon(meta types.TokenMetadata, iconBase string) types.TokenMetadata {
	if meta.IconURL == "" {
		meta.IconURL = DefaultIconURL(iconBase, meta.Address)
	}
	return meta
}
