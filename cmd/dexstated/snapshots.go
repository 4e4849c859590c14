package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/Klingon-tech/klingnet-dexstate/internal/node"
)

// snapshot is one JSON line of daemon output.
type snapshot struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// printSnapshots writes every change of the main feeds to w until ctx is
// cancelled or a feed closes.
func printSnapshots(ctx context.Context, st *node.State, w io.Writer) error {
	enc := json.NewEncoder(w)
	emit := func(kind string, data interface{}) error {
		return enc.Encode(snapshot{Type: kind, Time: time.Now().UTC(), Data: data})
	}

	signers := st.Signers().Subscribe()
	defer signers.Unsubscribe()
	selected := st.Selected().Subscribe()
	defer selected.Unsubscribe()
	tokens := st.Tokens().Subscribe()
	defer tokens.Unsubscribe()
	prices := st.Views().TokenPrices().Subscribe()
	defer prices.Unsubscribe()
	pools := st.Views().Pools().Subscribe()
	defer pools.Unsubscribe()
	nfts := st.Views().NFTs().Subscribe()
	defer nfts.Unsubscribe()
	transfers := st.Views().Transfers().Subscribe()
	defer transfers.Unsubscribe()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-signers.C():
			if !ok {
				return nil
			}
			err = emit("signers", v)
		case v, ok := <-selected.C():
			if !ok {
				return nil
			}
			err = emit("selected", v)
		case v, ok := <-tokens.C():
			if !ok {
				return nil
			}
			err = emit("tokens", v)
		case v, ok := <-prices.C():
			if !ok {
				return nil
			}
			err = emit("token_prices", v)
		case v, ok := <-pools.C():
			if !ok {
				return nil
			}
			err = emit("pools", v)
		case v, ok := <-nfts.C():
			if !ok {
				return nil
			}
			err = emit("nfts", v)
		case v, ok := <-transfers.C():
			if !ok {
				return nil
			}
			err = emit("transfers", v)
		}
		if err != nil {
			return err
		}
	}
}
