package token

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-dexstate/internal/storage"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// Store persists token contract metadata keyed by lowercased address.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store in the tokens keyspace of db.
func NewStore(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, storage.PrefixTokens)}
}

// Put stores metadata for a token.
func (s *Store) Put(meta types.TokenMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(tokenKey(meta.Address), data)
}

// Get retrieves metadata for a token.
func (s *Store) Get(address string) (types.TokenMetadata, error) {
	data, err := s.db.Get(tokenKey(address))
	if err != nil {
		return types.TokenMetadata{}, fmt.Errorf("token get: %w", err)
	}
	var meta types.TokenMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.TokenMetadata{}, fmt.Errorf("token unmarshal: %w", err)
	}
	return meta, nil
}

// Has checks if metadata exists for a token.
func (s *Store) Has(address string) (bool, error) {
	return s.db.Has(tokenKey(address))
}

// ForEach iterates over all stored metadata. Corrupt entries are skipped.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(types.TokenMetadata) error) error {
	return s.db.ForEach(nil, func(_, value []byte) error {
		var meta types.TokenMetadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil
		}
		if meta.Address == "" {
			return nil
		}
		return fn(meta)
	})
}

// List returns all stored metadata.
func (s *Store) List() ([]types.TokenMetadata, error) {
	entries := []types.TokenMetadata{}
	err := s.ForEach(func(meta types.TokenMetadata) error {
		entries = append(entries, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func tokenKey(address string) []byte {
	return []byte(strings.ToLower(address))
}
