// Package config handles client configuration.
//
// Settings are layered: network defaults, then the config file, then
// command-line flags, then Validate.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the runtime configuration of the state layer.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	Chain   EndpointConfig
	Indexer EndpointConfig
	Wallet  WalletConfig
	Token   TokenConfig
	Price   PriceConfig
	RPC     RPCConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// EndpointConfig is a WebSocket endpoint with a dial/request timeout.
type EndpointConfig struct {
	URL     string
	Timeout time.Duration
}

// WalletConfig selects the local keystore wallet used as signer source.
type WalletConfig struct {
	Name     string `conf:"wallet.name"`
	Accounts int    `conf:"wallet.accounts"` // Minimum derived accounts; missing ones are derived on start.
}

// TokenConfig describes the native token and the metadata cache.
type TokenConfig struct {
	NativeAddress  string   `conf:"token.native_address"`
	NativeSymbol   string   `conf:"token.native_symbol"`
	NativeName     string   `conf:"token.native_name"`
	NativeDecimals int      `conf:"token.native_decimals"`
	IconBaseURL    string   `conf:"token.icon_base_url"`
	CacheSize      int      `conf:"token.cache_size"` // 0 = unbounded
	Validated      []string `conf:"token.validated"`
}

// PriceConfig configures the native price poller. An empty URL disables it.
type PriceConfig struct {
	URL      string        `conf:"price.url"`
	Path     string        `conf:"price.path"`
	Interval time.Duration `conf:"price.interval"`
}

// RPCConfig configures the JSON-RPC control endpoint.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`    // host:port
	AllowedIPs  []string `conf:"rpc.allowed"` // Empty = allow all.
	CORSOrigins []string `conf:"rpc.cors"`    // Allowed CORS origins ("*" = all).
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.dexstate
//	macOS:   ~/Library/Application Support/Dexstate
//	Windows: %APPDATA%\Dexstate
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dexstate"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Dexstate")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Dexstate")
		}
		return filepath.Join(home, "AppData", "Roaming", "Dexstate")
	default:
		return filepath.Join(home, ".dexstate")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the badger directory for preferences and token metadata.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "dexstate.conf")
}
