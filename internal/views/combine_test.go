package views

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

const native = "0x0000000000000000000000000000000001000000"

func tok(addr string, decimals int, bal int64) types.Token {
	return types.Token{
		TokenMetadata: types.TokenMetadata{Address: addr, Symbol: addr[len(addr)-2:], Decimals: decimals},
		Balance:       big.NewInt(bal),
	}
}

func addresses(list []types.Token) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.Address
	}
	return out
}

func TestCombineTokensDistinct(t *testing.T) {
	signer := []types.Token{tok(native, 18, 5), tok("0xAA", 18, 7)}
	validated := []types.Token{tok("0xaa", 18, 0), tok("0xbb", 6, 0)}

	got := CombineTokensDistinct(signer, validated)
	assert.Equal(t, []string{native, "0xAA", "0xbb"}, addresses(got))
	assert.Equal(t, int64(7), got[1].Balance.Int64(), "signer entry wins")
}

func TestCombineTokensDistinct_Empty(t *testing.T) {
	got := CombineTokensDistinct(nil, nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterPools(t *testing.T) {
	tokens := []types.Token{tok(native, 18, 0), tok("0xaa", 18, 0)}
	pools := []types.PoolReserves{
		{Address: "p1", Token1: native, Token2: "0xAA"},
		{Address: "p2", Token1: native, Token2: "0xcc"},
	}

	got := FilterPools(pools, tokens)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Address)
	assert.Empty(t, FilterPools(pools, nil))
}

func TestPriceTokens(t *testing.T) {
	tokens := []types.Token{tok(native, 18, 0), tok("0xaa", 6, 0), tok("0xbb", 18, 0)}
	// 1000 native against 500 units of 0xaa: one 0xaa is worth 2 native.
	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	pools := []types.PoolReserves{{
		Address:  "p1",
		Token1:   "0xAA",
		Token2:   native,
		Reserve1: big.NewInt(500_000_000),
		Reserve2: new(big.Int).Mul(big.NewInt(1000), e18),
	}}

	got := PriceTokens(tokens, native, decimal.RequireFromString("0.5"), pools)
	require.Len(t, got, 3)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("0.5")), got[0].Price.String())
	assert.True(t, got[1].Price.Equal(decimal.NewFromInt(1)), got[1].Price.String())
	assert.True(t, got[2].Price.IsZero())
}

func TestPriceTokens_EmptyReserveIsZero(t *testing.T) {
	tokens := []types.Token{tok(native, 18, 0), tok("0xaa", 18, 0)}
	pools := []types.PoolReserves{{Token1: native, Token2: "0xaa", Reserve1: big.NewInt(10), Reserve2: big.NewInt(0)}}

	got := PriceTokens(tokens, native, decimal.NewFromInt(3), pools)
	assert.True(t, got[1].Price.IsZero())
}

func TestTokenWithPrice_Value(t *testing.T) {
	tp := TokenWithPrice{Token: tok("0xaa", 2, 250), Price: decimal.NewFromInt(4)}
	assert.True(t, tp.Value().Equal(decimal.NewFromInt(10)), tp.Value().String())
}
