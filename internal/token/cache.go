package token

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// MetadataCache holds token contract metadata by address. Entries are
// never invalidated. With a positive size the cache is bounded by LRU
// eviction; the native entry is pinned and never evicted. A non-nil Store
// receives every merged entry and seeds the cache on Load.
type MetadataCache struct {
	mu      sync.Mutex
	native  types.TokenMetadata
	entries map[string]types.TokenMetadata
	bounded *lru.Cache[string, types.TokenMetadata]

	store   *Store
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewMetadataCache creates a cache seeded with the native token metadata.
// size <= 0 means unbounded. store may be nil.
func NewMetadataCache(native types.TokenMetadata, size int, store *Store, logger zerolog.Logger, m *metrics.Collector) (*MetadataCache, error) {
	c := &MetadataCache{
		native:  native,
		store:   store,
		logger:  logger,
		metrics: m,
	}
	if size > 0 {
		l, err := lru.New[string, types.TokenMetadata](size)
		if err != nil {
			return nil, err
		}
		c.bounded = l
	} else {
		c.entries = make(map[string]types.TokenMetadata)
	}
	c.metrics.MetadataCacheSize(c.Len())
	return c, nil
}

func cacheKey(address string) string {
	return strings.ToLower(address)
}

// Load seeds the cache from the persistent store.
func (c *MetadataCache) Load() (int, error) {
	if c.store == nil {
		return 0, nil
	}
	n := 0
	err := c.store.ForEach(func(meta types.TokenMetadata) error {
		c.mu.Lock()
		c.add(meta)
		c.mu.Unlock()
		n++
		return nil
	})
	c.metrics.MetadataCacheSize(c.Len())
	return n, err
}

// Get returns the metadata for address.
func (c *MetadataCache) Get(address string) (types.TokenMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(address)
}

func (c *MetadataCache) get(address string) (types.TokenMetadata, bool) {
	key := cacheKey(address)
	if key == cacheKey(c.native.Address) {
		return c.native, true
	}
	if c.bounded != nil {
		return c.bounded.Get(key)
	}
	m, ok := c.entries[key]
	return m, ok
}

func (c *MetadataCache) add(meta types.TokenMetadata) {
	key := cacheKey(meta.Address)
	if key == cacheKey(c.native.Address) {
		return
	}
	if c.bounded != nil {
		c.bounded.Add(key, meta)
		return
	}
	c.entries[key] = meta
}

// Resolved is the metadata one pipeline cycle joins against, keyed like
// the cache. It outlives evictions from a bounded cache.
type Resolved map[string]types.TokenMetadata

// Get returns the metadata for address.
func (r Resolved) Get(address string) (types.TokenMetadata, bool) {
	m, ok := r[cacheKey(address)]
	return m, ok
}

// Add records fetched metadata. Entries without an address are ignored.
func (r Resolved) Add(metas []types.TokenMetadata) {
	for _, m := range metas {
		if m.Address == "" {
			continue
		}
		key := cacheKey(m.Address)
		if _, ok := r[key]; !ok {
			r[key] = m
		}
	}
}

// Lookup resolves addresses in one pass. It returns the cached metadata and
// the distinct addresses not cached, in first-seen order.
func (c *MetadataCache) Lookup(addresses []string) (Resolved, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(Resolved, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	var missing []string
	for _, a := range addresses {
		key := cacheKey(a)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if m, ok := c.get(a); ok {
			found[key] = m
			continue
		}
		missing = append(missing, a)
	}
	return found, missing
}

// Missing returns the distinct addresses not present in the cache, in
// first-seen order.
func (c *MetadataCache) Missing(addresses []string) []string {
	_, missing := c.Lookup(addresses)
	return missing
}

// Merge adds fetched metadata. Entries already cached are kept as they are.
func (c *MetadataCache) Merge(metas []types.TokenMetadata) {
	var fresh []types.TokenMetadata

	c.mu.Lock()
	for _, m := range metas {
		if m.Address == "" {
			continue
		}
		if _, ok := c.get(m.Address); ok {
			continue
		}
		c.add(m)
		fresh = append(fresh, m)
	}
	c.mu.Unlock()

	if c.store != nil {
		for _, m := range fresh {
			if err := c.store.Put(m); err != nil {
				c.logger.Warn().Err(err).Str("token", m.Address).Msg("Failed to persist token metadata")
			}
		}
	}
	c.metrics.MetadataCacheSize(c.Len())
}

// Len returns the number of cached entries, including the native token.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bounded != nil {
		return c.bounded.Len() + 1
	}
	return len(c.entries) + 1
}

// Native returns the pinned native token metadata.
func (c *MetadataCache) Native() types.TokenMetadata {
	return c.native
}
