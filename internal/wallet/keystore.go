package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const keystoreVersion = 2

// ErrWalletNotFound is returned for unknown wallet names.
var ErrWalletNotFound = errors.New("wallet not found")

// keystoreFile is the on-disk JSON format of one wallet.
type keystoreFile struct {
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	Prefix        byte           `json:"prefix"`
	EncryptedSeed []byte         `json:"encrypted_seed"`
	Accounts      []AccountEntry `json:"accounts"`
	NextIndex     uint32         `json:"next_index"`
}

// AccountEntry is the public metadata of a derived account.
type AccountEntry struct {
	Index      uint32 `json:"index"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	EvmAddress string `json:"evm_address"`
}

// Keystore manages encrypted wallet files in a directory.
type Keystore struct {
	path string
}

// NewKeystore opens a keystore directory, creating it if needed.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new wallet sealing seed under password. prefix is the
// network prefix used for native addresses of derived accounts.
func (ks *Keystore) Create(name string, seed, password []byte, prefix byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}
	if len(seed) != SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}

	sealed, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		Prefix:        prefix,
		EncryptedSeed: sealed,
		Accounts:      []AccountEntry{},
	})
}

// Exists reports whether a wallet file exists.
func (ks *Keystore) Exists(name string) bool {
	_, err := os.Stat(ks.walletPath(name))
	return err == nil
}

// Load decrypts a wallet and returns its seed.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, nil
}

// Derive derives the next account of a wallet, records it and returns
// its metadata. An empty accountName defaults to "Account <n>".
func (ks *Keystore) Derive(name string, password []byte, accountName string) (AccountEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return AccountEntry{}, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return AccountEntry{}, fmt.Errorf("decrypt wallet: %w", err)
	}
	defer wipe(seed)

	key, err := accountKey(seed, kf.NextIndex)
	if err != nil {
		return AccountEntry{}, err
	}
	evm, err := key.EvmAddress()
	if err != nil {
		return AccountEntry{}, err
	}
	if accountName == "" {
		accountName = fmt.Sprintf("Account %d", kf.NextIndex+1)
	}
	entry := AccountEntry{
		Index:      kf.NextIndex,
		Name:       accountName,
		Address:    key.NativeAddress(kf.Prefix),
		EvmAddress: evm,
	}
	kf.Accounts = append(kf.Accounts, entry)
	kf.NextIndex++
	if err := ks.writeFile(ks.walletPath(name), kf); err != nil {
		return AccountEntry{}, err
	}
	return entry, nil
}

// Accounts returns the derived accounts of a wallet.
func (ks *Keystore) Accounts(name string) ([]AccountEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// List returns the names of all wallets in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".wallet" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}

func accountKey(seed []byte, index uint32) (*HDKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	return master.DeriveAccount(index)
}
