package types

import (
	"math/big"
	"time"
)

// TokenMetadata is the immutable contract data of a token.
type TokenMetadata struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	IconURL  string `json:"iconUrl"`
}

// Token is token metadata plus a balance for one signer.
type Token struct {
	TokenMetadata
	Balance *big.Int `json:"balance"`
}

// Clone returns a copy with its own balance value.
func (t Token) Clone() Token {
	if t.Balance != nil {
		t.Balance = new(big.Int).Set(t.Balance)
	}
	return t
}

// Holding is a token balance as reported by the indexer. Balance is kept in
// the decimal notation the indexer sent, which may be exponential.
type Holding struct {
	TokenAddress string `json:"tokenAddress"`
	Balance      string `json:"balance"`
}

// ContractType classifies a verified token contract.
type ContractType string

const (
	ContractERC20   ContractType = "ERC20"
	ContractERC721  ContractType = "ERC721"
	ContractERC1155 ContractType = "ERC1155"
)

// IsNFT reports whether the contract type is a non-fungible standard.
func (c ContractType) IsNFT() bool {
	return c == ContractERC721 || c == ContractERC1155
}

// NFT is a non-fungible holding.
type NFT struct {
	Token
	NFTID        string       `json:"nftId"`
	ContractType ContractType `json:"contractType"`
}

// PoolReserves is the latest reserve snapshot of a liquidity pool.
type PoolReserves struct {
	Address  string   `json:"address"`
	Token1   string   `json:"token1"`
	Token2   string   `json:"token2"`
	Reserve1 *big.Int `json:"reserve1"`
	Reserve2 *big.Int `json:"reserve2"`
}

// Transfer is one entry of a signer's transfer history. NFT is set for
// ERC721/ERC1155 transfers; Token always carries the moved amount.
type Transfer struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Token     Token     `json:"token"`
	NFT       *NFT      `json:"nft,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Inbound   bool      `json:"inbound"`
}
