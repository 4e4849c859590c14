package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/amount"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

const accountBindingsGQL = `subscription account_bindings($accountIds: [String!]!) {
  account(where: {address: {_in: $accountIds}}, order_by: {timestamp: asc, address: asc}) {
    address
    evm_address
  }
}`

const tokenHoldingsGQL = `subscription tokens_query($accountId: String!) {
  token_holder(
    order_by: {balance: desc}
    where: {_and: [{nft_id: {_is_null: true}}, {token_address: {_is_null: false}}, {signer: {_eq: $accountId}}]}
  ) {
    token_address
    balance
  }
}`

const nftHoldingsGQL = `subscription nfts_query($accountId: String) {
  token_holder(
    order_by: {balance: desc}
    where: {_and: [{nft_id: {_is_null: false}}, {signer: {_eq: $accountId}}]}
  ) {
    nft_id
    balance
    info
    token_address
    contract {
      verified_contract {
        name
        type
        contract_data
      }
    }
  }
}`

const contractDataGQL = `query contract_data_query($addresses: [String!]!) {
  verified_contract(where: {address: {_in: $addresses}}) {
    address
    contract_data
  }
}`

const transferHistoryGQL = `subscription transfers_query($accountId: String!) {
  transfer(
    where: {_or: [{to_address: {_eq: $accountId}}, {from_address: {_eq: $accountId}}], _and: {success: {_eq: true}}}
    limit: 10
    order_by: {timestamp: desc}
  ) {
    amount
    token_address
    from_address
    to_address
    timestamp
    nft_id
    token {
      address
      verified_contract {
        name
        type
        contract_data
      }
    }
  }
}`

const poolReservesGQL = `subscription pools_query {
  pool_event(distinct_on: pool_id, where: {type: {_eq: "Sync"}}, order_by: {pool_id: asc, timestamp: desc}) {
    reserved_1
    reserved_2
    pool {
      address
      token_1
      token_2
    }
  }
}`

// TransferHistoryLimit is the number of transfers kept per signer.
const TransferHistoryLimit = 10

func (c *Client) subscribeList(name, query string, vars map[string]interface{}, fn func(gjson.Result)) (func(), error) {
	stop, err := c.Subscribe(query, vars, fn, func(err error) {
		c.logger.Warn().Err(err).Str("operation", name).Msg("Indexer subscription error")
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	return stop, nil
}

// SubscribeBindings streams the account bindings of addresses.
func (c *Client) SubscribeBindings(_ context.Context, addresses []string, fn func([]types.AccountBinding)) (func(), error) {
	return c.subscribeList("account_bindings", accountBindingsGQL,
		map[string]interface{}{"accountIds": addresses},
		func(data gjson.Result) { fn(ParseBindings(data)) })
}

// SubscribeTokenHoldings streams the fungible token holdings of address.
func (c *Client) SubscribeTokenHoldings(_ context.Context, address string, fn func([]types.Holding)) (func(), error) {
	return c.subscribeList("token_holdings", tokenHoldingsGQL,
		map[string]interface{}{"accountId": address},
		func(data gjson.Result) { fn(ParseHoldings(data)) })
}

// SubscribeNFTHoldings streams the NFT holdings of address.
func (c *Client) SubscribeNFTHoldings(_ context.Context, address string, fn func([]types.NFT)) (func(), error) {
	return c.subscribeList("nft_holdings", nftHoldingsGQL,
		map[string]interface{}{"accountId": address},
		func(data gjson.Result) { fn(ParseNFTs(data)) })
}

// SubscribeTransfers streams the last successful transfers of address.
// evmAddress, when set, also marks transfers to it as inbound.
func (c *Client) SubscribeTransfers(_ context.Context, address, evmAddress string, fn func([]types.Transfer)) (func(), error) {
	return c.subscribeList("transfer_history", transferHistoryGQL,
		map[string]interface{}{"accountId": address},
		func(data gjson.Result) { fn(ParseTransfers(data, address, evmAddress)) })
}

// SubscribePools streams the latest reserves of every pool.
func (c *Client) SubscribePools(_ context.Context, fn func([]types.PoolReserves)) (func(), error) {
	return c.subscribeList("pool_reserves", poolReservesGQL, nil,
		func(data gjson.Result) { fn(ParsePools(data)) })
}

// ContractData fetches verified token metadata for addresses in one query.
func (c *Client) ContractData(ctx context.Context, addresses []string) ([]types.TokenMetadata, error) {
	data, err := c.Query(ctx, contractDataGQL, map[string]interface{}{"addresses": addresses})
	if err != nil {
		return nil, fmt.Errorf("contract data: %w", err)
	}
	return ParseContractData(data), nil
}

// numberString returns a JSON number or string field as text, keeping the
// original notation.
func numberString(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return v.Raw
	case gjson.String:
		return v.String()
	}
	return ""
}

// ParseBindings decodes account binding records. Records without an
// address are dropped.
func ParseBindings(data gjson.Result) []types.AccountBinding {
	var out []types.AccountBinding
	data.Get("account").ForEach(func(_, r gjson.Result) bool {
		addr := r.Get("address").String()
		if addr == "" {
			return true
		}
		out = append(out, types.AccountBinding{Address: addr, EvmAddress: r.Get("evm_address").String()})
		return true
	})
	return out
}

// ParseHoldings decodes token holdings. Records without a token address
// or balance are dropped.
func ParseHoldings(data gjson.Result) []types.Holding {
	out := []types.Holding{}
	data.Get("token_holder").ForEach(func(_, r gjson.Result) bool {
		addr := r.Get("token_address").String()
		bal := numberString(r.Get("balance"))
		if addr == "" || bal == "" {
			return true
		}
		out = append(out, types.Holding{TokenAddress: addr, Balance: bal})
		return true
	})
	return out
}

// ParseContractData decodes verified contract metadata.
func ParseContractData(data gjson.Result) []types.TokenMetadata {
	var out []types.TokenMetadata
	data.Get("verified_contract").ForEach(func(_, r gjson.Result) bool {
		addr := r.Get("address").String()
		cd := r.Get("contract_data")
		if addr == "" || !cd.Exists() {
			return true
		}
		out = append(out, types.TokenMetadata{
			Address:  addr,
			Symbol:   cd.Get("symbol").String(),
			Name:     cd.Get("name").String(),
			Decimals: int(cd.Get("decimals").Int()),
			IconURL:  cd.Get("token_icon_url").String(),
		})
		return true
	})
	return out
}

// ParseNFTs decodes NFT holdings. Records without a token address or NFT
// id are dropped.
func ParseNFTs(data gjson.Result) []types.NFT {
	out := []types.NFT{}
	data.Get("token_holder").ForEach(func(_, r gjson.Result) bool {
		addr := r.Get("token_address").String()
		id := numberString(r.Get("nft_id"))
		if addr == "" || id == "" {
			return true
		}
		bal, err := amount.ParseBalance(numberString(r.Get("balance")))
		if err != nil {
			return true
		}
		vc := r.Get("contract.verified_contract")
		name := r.Get("info.name").String()
		if name == "" {
			name = vc.Get("name").String()
		}
		out = append(out, types.NFT{
			Token: types.Token{
				TokenMetadata: types.TokenMetadata{
					Address: addr,
					Symbol:  r.Get("info.symbol").String(),
					Name:    name,
				},
				Balance: bal,
			},
			NFTID:        id,
			ContractType: types.ContractType(vc.Get("type").String()),
		})
		return true
	})
	return out
}

// ParseTransfers decodes transfer history. A transfer is inbound when its
// recipient is address or evmAddress.
func ParseTransfers(data gjson.Result, address, evmAddress string) []types.Transfer {
	out := []types.Transfer{}
	data.Get("transfer").ForEach(func(_, r gjson.Result) bool {
		from := r.Get("from_address").String()
		to := r.Get("to_address").String()
		tokenAddr := r.Get("token_address").String()
		vc := r.Get("token.verified_contract")
		if from == "" || to == "" || tokenAddr == "" || !vc.Exists() {
			return true
		}
		amt, err := amount.ParseBalance(numberString(r.Get("amount")))
		if err != nil {
			amt = new(big.Int)
		}
		cd := vc.Get("contract_data")
		tok := types.Token{
			TokenMetadata: types.TokenMetadata{
				Address:  tokenAddr,
				Symbol:   cd.Get("symbol").String(),
				Name:     cd.Get("name").String(),
				Decimals: int(cd.Get("decimals").Int()),
				IconURL:  cd.Get("token_icon_url").String(),
			},
			Balance: amt,
		}
		tr := types.Transfer{
			From:      from,
			To:        to,
			Token:     tok,
			Timestamp: parseTimestamp(r.Get("timestamp").String()),
			Inbound:   to == address || (evmAddress != "" && strings.EqualFold(to, evmAddress)),
		}
		if ct := types.ContractType(vc.Get("type").String()); ct.IsNFT() {
			nftTok := tok
			nftTok.IconURL = ""
			tr.NFT = &types.NFT{Token: nftTok, NFTID: numberString(r.Get("nft_id")), ContractType: ct}
		}
		out = append(out, tr)
		return true
	})
	return out
}

// ParsePools decodes pool reserve snapshots. Records with missing pool
// data or malformed reserves are dropped.
func ParsePools(data gjson.Result) []types.PoolReserves {
	out := []types.PoolReserves{}
	data.Get("pool_event").ForEach(func(_, r gjson.Result) bool {
		p := r.Get("pool")
		addr := p.Get("address").String()
		t1 := p.Get("token_1").String()
		t2 := p.Get("token_2").String()
		if addr == "" || t1 == "" || t2 == "" {
			return true
		}
		r1, err1 := amount.ParseBalance(numberString(r.Get("reserved_1")))
		r2, err2 := amount.ParseBalance(numberString(r.Get("reserved_2")))
		if err1 != nil || err2 != nil {
			return true
		}
		out = append(out, types.PoolReserves{Address: addr, Token1: t1, Token2: t2, Reserve1: r1, Reserve2: r2})
		return true
	})
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
