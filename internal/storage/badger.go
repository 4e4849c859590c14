package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingnet-dexstate/internal/log"
)

// BadgerDB implements DB on a Badger value log. The state layer writes a
// handful of small values, so the store is opened with reduced table and
// cache sizes.
type BadgerDB struct {
	db   *badger.DB
	path string
}

// NewBadger opens (or creates) the state database at path.
func NewBadger(path string) (*BadgerDB, error) {
	return openBadger(badger.DefaultOptions(path), path)
}

// NewBadgerInMemory opens a Badger database that never touches disk.
func NewBadgerInMemory() (*BadgerDB, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true), ":memory:")
}

func openBadger(opts badger.Options, path string) (*BadgerDB, error) {
	opts = opts.
		WithLogger(badgerLogger{l: klog.Storage.With().Str("db", path).Logger()}).
		WithMemTableSize(8 << 20).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(0).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("state database at %s is locked by another process (is dexstated already running?): %w", path, err)
		}
		return nil, fmt.Errorf("open state database at %s: %w", path, err)
	}
	klog.Storage.Debug().Str("path", path).Msg("State database opened")
	return &BadgerDB{db: db, path: path}, nil
}

func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("state get %q: %w", key, err)
	}
	return val, nil
}

func (b *BadgerDB) Put(key, value []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		return fmt.Errorf("state put %q: %w", key, err)
	}
	return nil
}

func (b *BadgerDB) Delete(key []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("state delete %q: %w", key, err)
	}
	return nil
}

func (b *BadgerDB) Has(key []byte) (bool, error) {
	_, err := b.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// ForEach visits keys under prefix in key order. Values are copied before
// fn runs; fn must not write to the DB since the read transaction is open.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = 16
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("state read %q: %w", item.Key(), err)
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and closes the database.
func (b *BadgerDB) Close() error {
	klog.Storage.Debug().Str("path", b.path).Msg("State database closed")
	return b.db.Close()
}

// badgerLogger forwards badger's internal log lines to zerolog. Info and
// debug chatter (compaction, value log GC) is demoted to trace.
type badgerLogger struct {
	l zerolog.Logger
}

func (g badgerLogger) Errorf(format string, args ...interface{}) {
	g.l.Error().Msgf(strings.TrimSpace(format), args...)
}

func (g badgerLogger) Warningf(format string, args ...interface{}) {
	g.l.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (g badgerLogger) Infof(format string, args ...interface{}) {
	g.l.Trace().Msgf(strings.TrimSpace(format), args...)
}

func (g badgerLogger) Debugf(format string, args ...interface{}) {
	g.l.Trace().Msgf(strings.TrimSpace(format), args...)
}
