// Package views derives read-only views from the token list of the
// selected signer: available tokens, pools, prices, NFTs and transfers.
package views

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/klingnet-dexstate/internal/token"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/amount"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// TokenWithPrice is a token with its USD unit price. Price is zero when no
// price can be derived.
type TokenWithPrice struct {
	types.Token
	Price decimal.Decimal `json:"price"`
}

// Value returns the USD value of the token balance.
func (t TokenWithPrice) Value() decimal.Decimal {
	return amount.ToDecimal(t.Balance, t.Decimals).Mul(t.Price)
}

// CombineTokensDistinct returns signer tokens followed by validated tokens
// not already present, distinct by address.
func CombineTokensDistinct(signerTokens, validated []types.Token) []types.Token {
	out := make([]types.Token, 0, len(signerTokens)+len(validated))
	seen := make(map[string]struct{}, cap(out))
	add := func(list []types.Token) {
		for _, t := range list {
			key := normalize(t.Address)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	add(signerTokens)
	add(validated)
	return out
}

// FilterPools keeps pools whose both tokens are in tokens.
func FilterPools(pools []types.PoolReserves, tokens []types.Token) []types.PoolReserves {
	known := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		known[normalize(t.Address)] = struct{}{}
	}
	out := []types.PoolReserves{}
	for _, p := range pools {
		_, ok1 := known[normalize(p.Token1)]
		_, ok2 := known[normalize(p.Token2)]
		if ok1 && ok2 {
			out = append(out, p)
		}
	}
	return out
}

// PriceTokens prices every token. The native token gets nativePrice; a
// token pooled against the native token is priced from the pool reserves;
// all others get zero.
func PriceTokens(tokens []types.Token, nativeAddress string, nativePrice decimal.Decimal, pools []types.PoolReserves) []TokenWithPrice {
	decimals := make(map[string]int, len(tokens))
	for _, t := range tokens {
		decimals[normalize(t.Address)] = t.Decimals
	}
	nativeDec, ok := decimals[normalize(nativeAddress)]
	if !ok {
		nativeDec = 18
	}

	out := make([]TokenWithPrice, len(tokens))
	for i, t := range tokens {
		out[i] = TokenWithPrice{Token: t.Clone(), Price: decimal.Zero}
		if token.SameAddress(t.Address, nativeAddress) {
			out[i].Price = nativePrice
			continue
		}
		for _, p := range pools {
			var nativeRes, tokenRes *big.Int
			switch {
			case token.SameAddress(p.Token1, nativeAddress) && token.SameAddress(p.Token2, t.Address):
				nativeRes, tokenRes = p.Reserve1, p.Reserve2
			case token.SameAddress(p.Token2, nativeAddress) && token.SameAddress(p.Token1, t.Address):
				nativeRes, tokenRes = p.Reserve2, p.Reserve1
			default:
				continue
			}
			tokenAmt := amount.ToDecimal(tokenRes, t.Decimals)
			if tokenAmt.IsZero() {
				break
			}
			ratio := amount.ToDecimal(nativeRes, nativeDec).Div(tokenAmt)
			out[i].Price = ratio.Mul(nativePrice)
			break
		}
	}
	return out
}

func normalize(address string) string {
	return strings.ToLower(address)
}
