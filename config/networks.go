package config

import "github.com/Klingon-tech/klingnet-dexstate/pkg/crypto"

// NativeTokenAddress is the EVM address of the native asset's ERC20 proxy.
const NativeTokenAddress = "0x0000000000000000000000000000000001000000"

// Network holds the static endpoints and contract addresses of a network.
type Network struct {
	Name           NetworkType
	RPCURL         string
	IndexerURL     string
	ExplorerURL    string
	RouterAddress  string
	FactoryAddress string
	GenesisHash    string
	AddressPrefix  byte
}

// Networks lists the known networks.
var Networks = map[NetworkType]Network{
	Mainnet: {
		Name:           Mainnet,
		RPCURL:         "wss://rpc.reefscan.com/ws",
		IndexerURL:     "wss://reefscan.com/graphql",
		ExplorerURL:    "https://reefscan.com",
		RouterAddress:  "0x641e34931C03751BFED14C4087bA395303bEd1A5",
		FactoryAddress: "0x380a9033500154872813F6E1120a81ed6c0760a8",
		GenesisHash:    "0x7834781d38e4798d548e34ec947d19deea29df148a7bf32484b7b24dacf8d4b7",
		AddressPrefix:  crypto.MainnetPrefix,
	},
	Testnet: {
		Name:           Testnet,
		RPCURL:         "wss://rpc-testnet.reefscan.com/ws",
		IndexerURL:     "wss://testnet.reefscan.com/graphql",
		ExplorerURL:    "https://testnet.reefscan.com",
		RouterAddress:  "0x0A2906130B1EcBffbE1Edb63D5417002956dFd41",
		FactoryAddress: "0xcA36bA38f2776184242d3652b17bA4A77842707e",
		GenesisHash:    "0x0f89efd7bf650f2d521afef7456ed98dff138f54b5b7915cc9bce437ab728660",
		AddressPrefix:  crypto.TestnetPrefix,
	},
}

// NetworkInfo returns the table entry of the configured network.
func (c *Config) NetworkInfo() Network {
	return Networks[c.Network]
}
