package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	Network string
	DataDir string
	Config  string

	ChainURL       string
	ChainTimeout   time.Duration
	IndexerURL     string
	IndexerTimeout time.Duration

	WalletName     string
	WalletAccounts int

	CacheSize int

	PriceURL      string
	PriceInterval time.Duration

	RPC     bool
	RPCAddr string

	Metrics     bool
	MetricsAddr string

	LogLevel string
	LogFile  string
	LogJSON  bool

	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetRPC     bool
	SetMetrics bool
	SetLogJSON bool
}

// ErrHelp is returned by ParseFlags when usage was requested.
var ErrHelp = errors.New("help requested")

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("dexstated", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	var testnet bool
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&testnet, "testnet", false, "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	fs.StringVar(&f.ChainURL, "chain-url", "", "Chain node WebSocket URL")
	fs.DurationVar(&f.ChainTimeout, "chain-timeout", 0, "Chain request timeout")
	fs.StringVar(&f.IndexerURL, "indexer-url", "", "Indexer GraphQL URL")
	fs.DurationVar(&f.IndexerTimeout, "indexer-timeout", 0, "Indexer request timeout")

	fs.StringVar(&f.WalletName, "wallet", "", "Keystore wallet name")
	fs.IntVar(&f.WalletAccounts, "accounts", 0, "Minimum number of derived accounts")

	fs.IntVar(&f.CacheSize, "token-cache-size", 0, "Token metadata cache entries (0 = unbounded)")

	fs.StringVar(&f.PriceURL, "price-url", "", "Native price endpoint")
	fs.DurationVar(&f.PriceInterval, "price-interval", 0, "Native price polling interval")

	fs.BoolVar(&f.RPC, "rpc", false, "Serve the JSON-RPC control endpoint")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "JSON-RPC listen address")

	fs.BoolVar(&f.Metrics, "metrics", false, "Serve Prometheus metrics")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "Metrics listen address")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, err
	}

	if testnet {
		f.Network = string(Testnet)
	}
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetMetrics = isFlagSet(fs, "metrics")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// A positional argument stops flag parsing; anything after it that looks
	// like a flag was silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ApplyFlags applies command-line flags to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if f.ChainURL != "" {
		cfg.Chain.URL = f.ChainURL
	}
	if f.ChainTimeout != 0 {
		cfg.Chain.Timeout = f.ChainTimeout
	}
	if f.IndexerURL != "" {
		cfg.Indexer.URL = f.IndexerURL
	}
	if f.IndexerTimeout != 0 {
		cfg.Indexer.Timeout = f.IndexerTimeout
	}

	if f.WalletName != "" {
		cfg.Wallet.Name = f.WalletName
	}
	if f.WalletAccounts != 0 {
		cfg.Wallet.Accounts = f.WalletAccounts
	}
	if f.CacheSize != 0 {
		cfg.Token.CacheSize = f.CacheSize
	}
	if f.PriceURL != "" {
		cfg.Price.URL = f.PriceURL
	}
	if f.PriceInterval != 0 {
		cfg.Price.Interval = f.PriceInterval
	}

	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}

	if f.SetMetrics {
		cfg.Metrics.Enabled = f.Metrics
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Addr = f.MetricsAddr
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `dexstated - reactive wallet and token state for a DEX client

Usage:
  dexstated [options]

Core Options:
  --network         Network type: mainnet (default) or testnet
  --testnet         Shorthand for --network=testnet
  --datadir         Data directory (default: ~/.dexstate)
  --config, -c      Config file path (default: <datadir>/dexstate.conf)

Endpoint Options:
  --chain-url         Chain node WebSocket URL
  --chain-timeout     Chain request timeout (default: 10s)
  --indexer-url       Indexer GraphQL URL (ws, wss, http or https)
  --indexer-timeout   Indexer request timeout (default: 10s)

Wallet Options:
  --wallet          Keystore wallet name (default: default)
  --accounts        Minimum number of derived accounts (default: 1)

Token Options:
  --token-cache-size  Metadata cache entries, 0 = unbounded
  --price-url         Native price endpoint (CoinGecko compatible)
  --price-interval    Native price polling interval (default: 60s)

RPC Options:
  --rpc             Serve the JSON-RPC control endpoint (default: true)
  --rpc-addr        JSON-RPC listen address (default: 127.0.0.1:9465)

Metrics Options:
  --metrics         Serve Prometheus metrics
  --metrics-addr    Metrics listen address (default: 127.0.0.1:9464)

Logging Options:
  --log-level       Log level: debug, info, warn, error (default: info)
  --log-file        Log file path (default: stdout)
  --log-json        Output logs as JSON

Environment:
  DEXSTATE_PASSWORD   Keystore password; prompted for when unset
`)
}

// Load builds the configuration from args: defaults for the selected
// network, the config file, then flags, then Validate. The data directory
// and a default config file are created on first start.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	dataDir := flags.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	configPath := flags.Config
	if configPath == "" {
		configPath = (&Config{DataDir: dataDir}).ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// The network picks the endpoint defaults, so resolve it first.
	network := NetworkType(strings.ToLower(fileValues["network"]))
	if flags.Network != "" {
		network = NetworkType(strings.ToLower(flags.Network))
	}
	cfg := Default(network)
	cfg.DataDir = dataDir
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory layout and a default config
// file when missing. It is idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.StateDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
