package rpc

import (
	"github.com/Klingon-tech/klingnet-dexstate/internal/views"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeUnavailable    = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// RequestUpdateParam is used by state_requestUpdate. Kinds are the
// DataKind names (native_balance, token_holdings, evm_binding). No
// addresses means every signer.
type RequestUpdateParam struct {
	Kinds     []string `json:"kinds"`
	Addresses []string `json:"addresses,omitempty"`
}

// SelectParam is used by state_select.
type SelectParam struct {
	Address string `json:"address"`
}

// ── Result types ────────────────────────────────────────────────────────

// SignerResult is a signer as reported over RPC. Balances are decimal
// strings of the raw on-chain integer.
type SignerResult struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Balance      string `json:"balance"`
	EvmAddress   string `json:"evm_address,omitempty"`
	IsEvmClaimed bool   `json:"is_evm_claimed"`
}

// SignerListResult is returned by state_signers.
type SignerListResult struct {
	Signers []SignerResult `json:"signers"`
}

// SelectedResult is returned by state_selected. Signer is nil when no
// signer is available.
type SelectedResult struct {
	Signer *SignerResult `json:"signer"`
}

// TokenResult is a token with its balance for one signer.
type TokenResult struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	IconURL  string `json:"icon_url,omitempty"`
	Balance  string `json:"balance"`
}

// TokenListResult is returned by state_tokens and state_availableTokens.
type TokenListResult struct {
	Tokens []TokenResult `json:"tokens"`
}

// PricedTokenResult is a token with its USD price and balance value.
type PricedTokenResult struct {
	TokenResult
	Price string `json:"price"`
	Value string `json:"value"`
}

// PricedTokenListResult is returned by state_tokenPrices.
type PricedTokenListResult struct {
	Tokens []PricedTokenResult `json:"tokens"`
}

// PoolResult is the latest reserve snapshot of a pool.
type PoolResult struct {
	Address  string `json:"address"`
	Token1   string `json:"token1"`
	Token2   string `json:"token2"`
	Reserve1 string `json:"reserve1"`
	Reserve2 string `json:"reserve2"`
}

// PoolListResult is returned by state_pools.
type PoolListResult struct {
	Pools []PoolResult `json:"pools"`
}

// RequestUpdateResult is returned by state_requestUpdate.
type RequestUpdateResult struct {
	Queued int `json:"queued"`
}

// SelectResult is returned by state_select.
type SelectResult struct {
	Address string `json:"address"`
}

// ── Conversions ─────────────────────────────────────────────────────────

// NewSignerResult converts a signer for RPC output.
func NewSignerResult(s *types.Signer) SignerResult {
	return SignerResult{
		Address:      s.Address,
		Name:         s.Name,
		Balance:      s.BalanceOrZero().String(),
		EvmAddress:   s.EvmAddress,
		IsEvmClaimed: s.IsEvmClaimed,
	}
}

// NewTokenResult converts a token for RPC output.
func NewTokenResult(t types.Token) TokenResult {
	bal := "0"
	if t.Balance != nil {
		bal = t.Balance.String()
	}
	return TokenResult{
		Address:  t.Address,
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		IconURL:  t.IconURL,
		Balance:  bal,
	}
}

func newTokenList(list []types.Token) *TokenListResult {
	out := make([]TokenResult, len(list))
	for i, t := range list {
		out[i] = NewTokenResult(t)
	}
	return &TokenListResult{Tokens: out}
}

func newPricedTokenList(list []views.TokenWithPrice) *PricedTokenListResult {
	out := make([]PricedTokenResult, len(list))
	for i, t := range list {
		out[i] = PricedTokenResult{
			TokenResult: NewTokenResult(t.Token),
			Price:       t.Price.String(),
			Value:       t.Value().String(),
		}
	}
	return &PricedTokenListResult{Tokens: out}
}

func newPoolList(list []types.PoolReserves) *PoolListResult {
	out := make([]PoolResult, len(list))
	for i, p := range list {
		out[i] = PoolResult{
			Address:  p.Address,
			Token1:   p.Token1,
			Token2:   p.Token2,
			Reserve1: bigString(p.Reserve1),
			Reserve2: bigString(p.Reserve2),
		}
	}
	return &PoolListResult{Pools: out}
}
