// dexstate-cli manages local keystore wallets and stored preferences.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingnet-dexstate/config"
	"github.com/Klingon-tech/klingnet-dexstate/internal/prefs"
	"github.com/Klingon-tech/klingnet-dexstate/internal/storage"
	"github.com/Klingon-tech/klingnet-dexstate/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	dataDir := config.DefaultDataDir()
	network := string(config.Mainnet)

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			network = string(config.Testnet)
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	cfg := config.Default(config.NetworkType(network))
	cfg.DataDir = dataDir
	if cfg.Network != config.NetworkType(network) {
		fatal("unknown network %q", network)
	}

	switch args[0] {
	case "wallet":
		cmdWallet(cfg, args[1:])
	case "prefs":
		cmdPrefs(cfg, args[1:])
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dexstate-cli [global flags] <command> [flags]

Global flags:
  --datadir <path>    Data directory (default: ~/.dexstate)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network=testnet

Commands:
  wallet create --name <name> [--accounts <n>]
  wallet import --name <name> --mnemonic "<words>" [--passphrase <p>] [--accounts <n>]
  wallet derive --name <name> [--label <label>]
  wallet list [--name <name>]
  prefs get
  prefs set <address>
  prefs clear

The password is read from DEXSTATE_PASSWORD or prompted for.
Preference commands need exclusive access; stop dexstated first.
`)
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: dexstate-cli wallet <create|import|derive|list> [flags]")
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}

	switch args[0] {
	case "create":
		cmdWalletCreate(cfg, ks, args[1:])
	case "import":
		cmdWalletImport(cfg, ks, args[1:])
	case "derive":
		cmdWalletDerive(ks, args[1:])
	case "list":
		cmdWalletList(ks, args[1:])
	default:
		fatal("Unknown wallet command: %s\nUsage: dexstate-cli wallet <create|import|derive|list> [flags]", args[0])
	}
}

func cmdWalletCreate(cfg *config.Config, ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	accounts := fs.Int("accounts", 1, "Accounts to derive")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: dexstate-cli wallet create --name <name>")
	}
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	createFromMnemonic(cfg, ks, *name, mnemonic, "", *accounts)
}

func cmdWalletImport(cfg *config.Config, ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	passphrase := fs.String("passphrase", "", "Optional BIP-39 passphrase")
	accounts := fs.Int("accounts", 1, "Accounts to derive")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: dexstate-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}
	createFromMnemonic(cfg, ks, *name, *mnemonic, *passphrase, *accounts)
}

func createFromMnemonic(cfg *config.Config, ks *wallet.Keystore, name, mnemonic, passphrase string, accounts int) {
	password := newPassword()

	seed, err := wallet.SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		fatal("derive seed: %v", err)
	}
	err = ks.Create(name, seed, password, cfg.NetworkInfo().AddressPrefix, wallet.DefaultParams())
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("create wallet: %v", err)
	}

	fmt.Printf("Wallet created: %s\n", name)
	for i := 0; i < accounts; i++ {
		entry, err := ks.Derive(name, password, "")
		if err != nil {
			fatal("derive account: %v", err)
		}
		printAccount(entry)
	}
}

func cmdWalletDerive(ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet derive", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	label := fs.String("label", "", "Account label")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: dexstate-cli wallet derive --name <name> [--label <label>]")
	}
	password, err := existingPassword()
	if err != nil {
		fatal("read password: %v", err)
	}
	entry, err := ks.Derive(*name, password, *label)
	if err != nil {
		fatal("derive account: %v", err)
	}
	printAccount(entry)
}

func cmdWalletList(ks *wallet.Keystore, args []string) {
	fs := flag.NewFlagSet("wallet list", flag.ExitOnError)
	name := fs.String("name", "", "Show accounts of this wallet")
	fs.Parse(args)

	if *name != "" {
		accounts, err := ks.Accounts(*name)
		if err != nil {
			fatal("%v", err)
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts derived.")
		}
		for _, a := range accounts {
			printAccount(a)
		}
		return
	}

	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func printAccount(a wallet.AccountEntry) {
	fmt.Printf("  [%d] %-12s %s  evm %s\n", a.Index, a.Name, a.Address, a.EvmAddress)
}

// ── prefs ───────────────────────────────────────────────────────────────

func cmdPrefs(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fatal("Usage: dexstate-cli prefs <get|set|clear>")
	}
	if err := os.MkdirAll(cfg.StateDir(), 0755); err != nil {
		fatal("create state dir: %v", err)
	}
	db, err := storage.NewBadger(cfg.StateDir())
	if err != nil {
		fatal("open state (is dexstated running?): %v", err)
	}
	defer db.Close()
	store := prefs.NewStore(db)

	switch args[0] {
	case "get":
		addr, err := store.SelectedAddress()
		if errors.Is(err, prefs.ErrNoPreference) {
			fmt.Println("No signer selected.")
			return
		}
		if err != nil {
			fatalClose(db, "read preference: %v", err)
		}
		fmt.Println(addr)
	case "set":
		if len(args) < 2 || args[1] == "" {
			fatalClose(db, "Usage: dexstate-cli prefs set <address>")
		}
		if err := store.SetSelectedAddress(args[1]); err != nil {
			fatalClose(db, "write preference: %v", err)
		}
		fmt.Printf("Selected signer: %s\n", args[1])
	case "clear":
		if err := store.ClearSelectedAddress(); err != nil {
			fatalClose(db, "clear preference: %v", err)
		}
		fmt.Println("Selection cleared.")
	default:
		fatalClose(db, "Unknown prefs command: %s", args[0])
	}
}

// ── Password helpers ────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func existingPassword() ([]byte, error) {
	if pw := os.Getenv("DEXSTATE_PASSWORD"); pw != "" {
		return []byte(pw), nil
	}
	return readPassword("Enter password: ")
}

func newPassword() []byte {
	if pw := os.Getenv("DEXSTATE_PASSWORD"); pw != "" {
		return []byte(pw)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

// ── Error helpers ───────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// fatalClose closes db before exiting so badger releases its lock.
func fatalClose(db storage.DB, format string, args ...interface{}) {
	db.Close()
	fatal(format, args...)
}
