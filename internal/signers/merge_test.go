package signers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

func signer(addr string, bal int64) *types.Signer {
	return &types.Signer{Address: addr, Name: "acc-" + addr, Balance: big.NewInt(bal)}
}

func addrs(list []*types.Signer) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Address
	}
	return out
}

func TestSignersToUpdate(t *testing.T) {
	list := []*types.Signer{signer("A", 1), signer("B", 2), signer("C", 3)}

	uc := types.UpdateContext{Requests: []types.UpdateRequest{
		{Kind: types.NativeBalance, Address: "C"},
		{Kind: types.NativeBalance, Address: "A"},
		{Kind: types.EvmBinding},
	}}
	assert.Equal(t, []string{"A", "C"}, addrs(SignersToUpdate(types.NativeBalance, uc, list)))
	assert.Equal(t, []string{"A", "B", "C"}, addrs(SignersToUpdate(types.EvmBinding, uc, list)))
	assert.Empty(t, SignersToUpdate(types.TokenHoldings, uc, list))
}

func TestDedupe(t *testing.T) {
	a1, a2, b := signer("A", 1), signer("A", 2), signer("B", 3)
	got := Dedupe([]*types.Signer{a1, nil, b, a2})
	require.Equal(t, []string{"A", "B"}, addrs(got))
	assert.Same(t, a1, got[0], "first occurrence wins")
}

func TestMergeBalances(t *testing.T) {
	visible := []*types.Signer{signer("A", 100), signer("B", 200)}
	changed := MergeBalances(visible, []types.AddressBalance{
		{Address: "A", Balance: big.NewInt(100)},
		{Address: "B", Balance: big.NewInt(250)},
		{Address: "Z", Balance: big.NewInt(1)},
	})
	require.Len(t, changed, 1)
	assert.Equal(t, 0, changed["B"].Cmp(big.NewInt(250)))
}

func TestChangedBindings(t *testing.T) {
	baseline := func(addr string) (Binding, bool) {
		if addr == "A" {
			return Binding{}, true
		}
		return Binding{}, false
	}
	prev := make(map[string]Binding)

	changed := ChangedBindings([]types.AccountBinding{{Address: "A"}}, prev, baseline)
	assert.Empty(t, changed, "report equal to baseline is not a change")

	changed = ChangedBindings([]types.AccountBinding{
		{Address: "A"},
		{Address: "A", EvmAddress: "0xaa"},
	}, prev, baseline)
	require.Len(t, changed, 1)
	assert.Equal(t, Binding{EvmAddress: "0xaa", Claimed: true}, changed["A"], "last record per address wins")

	changed = ChangedBindings([]types.AccountBinding{{Address: "A", EvmAddress: "0xaa"}}, prev, baseline)
	assert.Empty(t, changed, "repeat of the previous report is not a change")

	changed = ChangedBindings([]types.AccountBinding{{Address: "Q"}}, prev, baseline)
	assert.Len(t, changed, 1, "unknown address without baseline counts as changed")
}

func TestOverlay(t *testing.T) {
	a, b := signer("A", 1), signer("B", 2)
	out := Overlay([]*types.Signer{a, b},
		map[string]*big.Int{"A": big.NewInt(9)},
		map[string]Binding{"B": {EvmAddress: "0xbb", Claimed: true}})

	assert.Equal(t, int64(9), out[0].Balance.Int64())
	assert.Equal(t, int64(1), a.Balance.Int64(), "input signer is not mutated")
	assert.True(t, out[1].IsEvmClaimed)
	assert.Equal(t, "0xbb", out[1].EvmAddress)
	assert.False(t, b.IsEvmClaimed)
}

func TestEqual(t *testing.T) {
	a := []*types.Signer{signer("A", 1)}
	assert.True(t, Equal(a, []*types.Signer{signer("A", 1)}))
	assert.True(t, Equal(
		[]*types.Signer{{Address: "A"}},
		[]*types.Signer{{Address: "A", Balance: new(big.Int)}},
	), "nil balance equals zero")
	assert.False(t, Equal(a, []*types.Signer{signer("A", 2)}))
	assert.False(t, Equal(a, nil))

	h1 := &types.Signer{Address: "A", Handle: claimHandle{claimed: true}}
	h2 := &types.Signer{Address: "A", Handle: claimHandle{claimed: false}}
	assert.False(t, Equal([]*types.Signer{h1}, []*types.Signer{h2}), "handle swap is a change")
	assert.False(t, Equal([]*types.Signer{h1}, []*types.Signer{{Address: "A"}}))
	assert.True(t, Equal([]*types.Signer{h1}, []*types.Signer{h1.Clone()}))
}
