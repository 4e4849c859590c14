// dexstated keeps wallet and token state in sync with a chain node and an
// indexer and prints every change as a JSON line on stdout.
//
// Usage:
//
//	dexstated [--testnet] [--wallet=name]   Run
//	dexstated --help                        Show help
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-dexstate/config"
	"github.com/Klingon-tech/klingnet-dexstate/internal/chain"
	"github.com/Klingon-tech/klingnet-dexstate/internal/indexer"
	klog "github.com/Klingon-tech/klingnet-dexstate/internal/log"
	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/internal/node"
	"github.com/Klingon-tech/klingnet-dexstate/internal/rpc"
	"github.com/Klingon-tech/klingnet-dexstate/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-dexstate/internal/storage"
	"github.com/Klingon-tech/klingnet-dexstate/internal/stream"
	"github.com/Klingon-tech/klingnet-dexstate/internal/views"
	"github.com/Klingon-tech/klingnet-dexstate/internal/wallet"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, flags, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		config.PrintUsage(os.Stdout)
		return nil
	}
	if err != nil {
		return err
	}
	if flags.Help {
		config.PrintUsage(os.Stdout)
		return nil
	}
	if flags.Version {
		fmt.Println("dexstated version " + version)
		return nil
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "dexstate.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("daemon")
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("chain", cfg.Chain.URL).
		Str("indexer", cfg.Indexer.URL).
		Msg("Starting dexstated")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("open database at %s: %w", cfg.StateDir(), err)
	}
	defer db.Close()

	m := metrics.NewCollector("dexstate")

	conn, err := rpcclient.Dial(ctx, cfg.Chain.URL, cfg.Chain.Timeout, klog.Chain)
	if err != nil {
		return fmt.Errorf("connect chain: %w", err)
	}
	defer conn.Close()
	chainClient := chain.New(conn, klog.Chain)

	idx, err := indexer.Dial(ctx, cfg.Indexer.URL, cfg.Indexer.Timeout, klog.Indexer, m)
	if err != nil {
		return fmt.Errorf("connect indexer: %w", err)
	}
	defer idx.Close()

	list, err := loadSigners(cfg, chainClient)
	if err != nil {
		return err
	}
	validated, err := node.ValidatedTokens(ctx, idx, cfg.Token.Validated, cfg.Token.IconBaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Validated token list unavailable")
	}

	var poller *views.PricePoller
	var prices *stream.Feed[decimal.Decimal]
	if cfg.Price.URL != "" {
		poller = views.NewPricePoller(cfg.Price.URL, cfg.Price.Path, cfg.Price.Interval, klog.Views)
		prices = poller.Prices()
	}

	st, err := node.New(db, chainClient, idx, node.Options{
		Native: types.TokenMetadata{
			Address:  cfg.Token.NativeAddress,
			Symbol:   cfg.Token.NativeSymbol,
			Name:     cfg.Token.NativeName,
			Decimals: cfg.Token.NativeDecimals,
		},
		IconBaseURL: cfg.Token.IconBaseURL,
		CacheSize:   cfg.Token.CacheSize,
		Validated:   validated,
		Prices:      prices,
	}, m)
	if err != nil {
		return err
	}
	st.SetSigners(list)

	var api *rpc.Server
	if cfg.RPC.Enabled {
		api = rpc.New(cfg.RPC.Addr, st, cfg.RPC)
		api.SetViews(st.Views())
		if err := api.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.Run(gctx) })
	if poller != nil {
		g.Go(func() error { return poller.Run(gctx) })
	}
	g.Go(func() error { return printSnapshots(gctx, st, os.Stdout) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-conn.Done():
			return fmt.Errorf("chain connection lost: %w", conn.Err())
		case <-idx.Done():
			return errors.New("indexer connection lost")
		}
	})
	if api != nil {
		g.Go(func() error {
			<-gctx.Done()
			return api.Stop()
		})
	}
	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	for _, s := range list {
		if h, ok := s.Handle.(*wallet.LocalSigner); ok {
			h.Close()
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("Goodbye!")
	return nil
}

func metricsMux(m *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// loadSigners unlocks the configured keystore wallet, deriving accounts up
// to wallet.accounts. Without a wallet file the daemon runs with no signers.
func loadSigners(cfg *config.Config, claims wallet.ClaimChecker) ([]*types.Signer, error) {
	logger := klog.Wallet
	if cfg.Wallet.Name == "" {
		return nil, nil
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		return nil, err
	}
	if !ks.Exists(cfg.Wallet.Name) {
		logger.Warn().Str("wallet", cfg.Wallet.Name).Msg("Wallet not found, running without signers (create one with dexstate-cli wallet create)")
		return nil, nil
	}

	password, err := walletPassword()
	if err != nil {
		return nil, err
	}
	accounts, err := ks.Accounts(cfg.Wallet.Name)
	if err != nil {
		return nil, err
	}
	for n := len(accounts); n < cfg.Wallet.Accounts; n++ {
		entry, err := ks.Derive(cfg.Wallet.Name, password, "")
		if err != nil {
			return nil, fmt.Errorf("derive account: %w", err)
		}
		logger.Info().Str("address", entry.Address).Uint32("index", entry.Index).Msg("Derived account")
	}

	list, err := ks.Signers(cfg.Wallet.Name, password, claims)
	if err != nil {
		return nil, fmt.Errorf("unlock wallet %q: %w", cfg.Wallet.Name, err)
	}
	logger.Info().Str("wallet", cfg.Wallet.Name).Int("signers", len(list)).Msg("Wallet unlocked")
	return list, nil
}

func walletPassword() ([]byte, error) {
	if pw := os.Getenv("DEXSTATE_PASSWORD"); pw != "" {
		return []byte(pw), nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return nil, errors.New("DEXSTATE_PASSWORD is not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Wallet password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}
