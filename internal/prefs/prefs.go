// Package prefs persists user preferences of the state layer.
package prefs

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-dexstate/internal/storage"
)

// ErrNoPreference is returned when no selected address has been stored.
var ErrNoPreference = errors.New("no preference stored")

var selectedAddressKey = []byte("selected_address")

// Store reads and writes preferences in its own keyspace of a DB.
type Store struct {
	db storage.DB
}

// NewStore creates a preference store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, storage.PrefixPrefs)}
}

// SelectedAddress returns the persisted selected signer address.
func (s *Store) SelectedAddress() (string, error) {
	v, err := s.db.Get(selectedAddressKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoPreference
	}
	if err != nil {
		return "", fmt.Errorf("read selected address: %w", err)
	}
	if len(v) == 0 {
		return "", ErrNoPreference
	}
	return string(v), nil
}

// SetSelectedAddress overwrites the persisted selected signer address.
func (s *Store) SetSelectedAddress(address string) error {
	if err := s.db.Put(selectedAddressKey, []byte(address)); err != nil {
		return fmt.Errorf("write selected address: %w", err)
	}
	return nil
}

// ClearSelectedAddress removes the persisted selection.
func (s *Store) ClearSelectedAddress() error {
	if err := s.db.Delete(selectedAddressKey); err != nil {
		return fmt.Errorf("clear selected address: %w", err)
	}
	return nil
}
