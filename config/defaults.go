package config

import "time"

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	if network != Testnet {
		network = Mainnet
	}
	net := Networks[network]
	return &Config{
		Network: network,
		DataDir: DefaultDataDir(),
		Chain: EndpointConfig{
			URL:     net.RPCURL,
			Timeout: 10 * time.Second,
		},
		Indexer: EndpointConfig{
			URL:     net.IndexerURL,
			Timeout: 10 * time.Second,
		},
		Wallet: WalletConfig{
			Name:     "default",
			Accounts: 1,
		},
		Token: TokenConfig{
			NativeAddress:  NativeTokenAddress,
			NativeSymbol:   "REEF",
			NativeName:     "REEF",
			NativeDecimals: 18,
			IconBaseURL:    "https://icons.reefscan.com",
		},
		Price: PriceConfig{
			URL:      "https://api.coingecko.com/api/v3/simple/price?ids=reef&vs_currencies=usd",
			Path:     "reef.usd",
			Interval: time.Minute,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1:9465",
			AllowedIPs: []string{"127.0.0.1"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
