package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Validate checks the configuration for operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if err := validateURL(cfg.Chain.URL, "chain.url", "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL(cfg.Indexer.URL, "indexer.url", "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if cfg.Chain.Timeout <= 0 || cfg.Indexer.Timeout <= 0 {
		return fmt.Errorf("chain.timeout and indexer.timeout must be positive")
	}
	if cfg.Wallet.Accounts < 0 {
		return fmt.Errorf("wallet.accounts must not be negative")
	}
	if cfg.Wallet.Accounts > 0 && cfg.Wallet.Name == "" {
		return fmt.Errorf("wallet.name is required when wallet.accounts > 0")
	}
	if !isHexAddress(cfg.Token.NativeAddress) {
		return fmt.Errorf("token.native_address must be a 0x-prefixed 20-byte address")
	}
	if cfg.Token.NativeDecimals < 0 || cfg.Token.NativeDecimals > 36 {
		return fmt.Errorf("token.native_decimals must be in range [0, 36]")
	}
	if cfg.Token.CacheSize < 0 {
		return fmt.Errorf("token.cache_size must not be negative")
	}
	for i, addr := range cfg.Token.Validated {
		if !isHexAddress(addr) {
			return fmt.Errorf("token.validated[%d] is not a valid address", i)
		}
	}
	if cfg.Price.URL != "" {
		if err := validateURL(cfg.Price.URL, "price.url", "http", "https"); err != nil {
			return err
		}
		if cfg.Price.Path == "" {
			return fmt.Errorf("price.path is required when price.url is set")
		}
		if cfg.Price.Interval < time.Second {
			return fmt.Errorf("price.interval must be at least 1s")
		}
	}
	if cfg.RPC.Enabled {
		if _, _, err := net.SplitHostPort(cfg.RPC.Addr); err != nil {
			return fmt.Errorf("rpc.addr must be host:port: %w", err)
		}
		for _, entry := range cfg.RPC.AllowedIPs {
			if net.ParseIP(entry) == nil {
				if _, _, err := net.ParseCIDR(entry); err != nil {
					return fmt.Errorf("rpc.allowed: invalid IP or CIDR %q", entry)
				}
			}
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateURL(raw, field string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", field)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s", field, strings.Join(schemes, ", "))
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
