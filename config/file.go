package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile reads a .conf file of "key = value" lines; # starts a comment.
// A missing file yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}
	return values, scanner.Err()
}

// ApplyFileConfig applies file values to cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "network":
		cfg.Network = NetworkType(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	case "chain.url":
		cfg.Chain.URL = value
	case "chain.timeout":
		cfg.Chain.Timeout, err = parseDuration(value)
	case "indexer.url":
		cfg.Indexer.URL = value
	case "indexer.timeout":
		cfg.Indexer.Timeout, err = parseDuration(value)

	case "wallet.name":
		cfg.Wallet.Name = value
	case "wallet.accounts":
		cfg.Wallet.Accounts, err = strconv.Atoi(value)

	case "token.native_address":
		cfg.Token.NativeAddress = value
	case "token.native_symbol":
		cfg.Token.NativeSymbol = value
	case "token.native_name":
		cfg.Token.NativeName = value
	case "token.native_decimals":
		cfg.Token.NativeDecimals, err = strconv.Atoi(value)
	case "token.icon_base_url":
		cfg.Token.IconBaseURL = value
	case "token.cache_size":
		cfg.Token.CacheSize, err = strconv.Atoi(value)
	case "token.validated":
		cfg.Token.Validated = parseStringList(value)

	case "price.url":
		cfg.Price.URL = value
	case "price.path":
		cfg.Price.Path = value
	case "price.interval":
		cfg.Price.Interval, err = parseDuration(value)

	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)
	case "metrics.addr":
		cfg.Metrics.Addr = value

	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return err
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration accepts Go durations ("30s") or a bare number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a commented default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# Dexstate Configuration

# Network: mainnet or testnet
network = ` + string(d.Network) + `

# Data directory (default: ~/.dexstate)
# datadir = ~/.dexstate

# ============================================================================
# Endpoints
# ============================================================================

# Chain node (JSON-RPC over WebSocket)
# chain.url = ` + d.Chain.URL + `
chain.timeout = 10s

# Indexer (GraphQL over WebSocket; http(s) URLs are converted)
# indexer.url = ` + d.Indexer.URL + `
indexer.timeout = 10s

# ============================================================================
# Wallet
# ============================================================================

wallet.name = ` + d.Wallet.Name + `
wallet.accounts = 1

# ============================================================================
# Tokens
# ============================================================================

# token.native_address = ` + d.Token.NativeAddress + `
# token.native_symbol = ` + d.Token.NativeSymbol + `
# token.native_decimals = 18
# token.icon_base_url = ` + d.Token.IconBaseURL + `

# Metadata cache entries (0 = unbounded)
token.cache_size = 0

# Curated token addresses always listed (comma-separated)
# token.validated =

# ============================================================================
# Price
# ============================================================================

# price.url = ` + d.Price.URL + `
# price.path = ` + d.Price.Path + `
price.interval = 60s

# ============================================================================
# JSON-RPC control endpoint
# ============================================================================

rpc.enabled = true
rpc.addr = ` + d.RPC.Addr + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Metrics / Logging
# ============================================================================

metrics.enabled = false
# metrics.addr = ` + d.Metrics.Addr + `

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
