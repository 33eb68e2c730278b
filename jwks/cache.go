package jwks

import (
	"context"
	"crypto"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SigningKey is a public key published by the identity provider
type SigningKey struct {
	KeyID     string
	Algorithm string
	Use       string
	Key       crypto.PublicKey
}

// KeyCache stores signing keys by key ID.
// Implementations must be safe for concurrent use.
type KeyCache interface {
	// Get returns the cached key for kid. A miss is reported with ok == false
	// and a nil error.
	Get(ctx context.Context, kid string) (key SigningKey, ok bool, err error)

	// Put stores keys, replacing any existing entries with the same key ID.
	Put(ctx context.Context, keys ...SigningKey) error
}

type cacheEntry struct {
	key       SigningKey
	expiresAt time.Time
	seq       uint64
}

// MemoryCache is a process-local KeyCache.
// Reads load an immutable snapshot without locking; writes copy the snapshot.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu       sync.Mutex // serializes writers
	seq      uint64     // write order, guarded by mu
	snapshot atomic.Pointer[map[string]cacheEntry]
}

// NewMemoryCache creates a MemoryCache. Entries expire after ttl; when more
// than maxEntries keys are live, the ones closest to expiry are evicted,
// least recently written first. The last key passed to Put always survives.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 5
	}
	c := &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
	empty := make(map[string]cacheEntry)
	c.snapshot.Store(&empty)
	return c
}

// Get implements KeyCache
func (c *MemoryCache) Get(_ context.Context, kid string) (SigningKey, bool, error) {
	entries := *c.snapshot.Load()
	entry, ok := entries[kid]
	if !ok || !c.now().Before(entry.expiresAt) {
		return SigningKey{}, false, nil
	}
	return entry.key, true, nil
}

// Put implements KeyCache
func (c *MemoryCache) Put(_ context.Context, keys ...SigningKey) error {
	if len(keys) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	current := *c.snapshot.Load()
	next := make(map[string]cacheEntry, len(current)+len(keys))
	for kid, entry := range current {
		if now.Before(entry.expiresAt) {
			next[kid] = entry
		}
	}
	expiresAt := now.Add(c.ttl)
	for _, key := range keys {
		c.seq++
		next[key.KeyID] = cacheEntry{key: key, expiresAt: expiresAt, seq: c.seq}
	}

	if overflow := len(next) - c.maxEntries; overflow > 0 {
		kids := make([]string, 0, len(next))
		for kid := range next {
			kids = append(kids, kid)
		}
		sort.Slice(kids, func(i, j int) bool {
			a, b := next[kids[i]], next[kids[j]]
			if !a.expiresAt.Equal(b.expiresAt) {
				return a.expiresAt.Before(b.expiresAt)
			}
			return a.seq < b.seq
		})
		for _, kid := range kids[:overflow] {
			delete(next, kid)
		}
	}

	c.snapshot.Store(&next)
	return nil
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	now := c.now()
	n := 0
	for _, entry := range *c.snapshot.Load() {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
