package github

import (
	"sync"
	"time"

	"github.com/devloghq/devlog/internal/model"
)

// readCache holds recently fetched entries and one full-listing snapshot.
// Every local write invalidates the whole cache; remote writes made outside
// this process are only as stale as the TTL.
type readCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]cachedEntry
	listing *cachedListing
}

type cachedEntry struct {
	entry   model.Entry
	expires time.Time
}

type cachedListing struct {
	entries []model.Entry
	expires time.Time
}

func newReadCache(ttl time.Duration) *readCache {
	return &readCache{ttl: ttl, entries: map[int64]cachedEntry{}}
}

func (c *readCache) getEntry(id int64) (*model.Entry, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ce, ok := c.entries[id]
	if !ok || time.Now().After(ce.expires) {
		delete(c.entries, id)
		return nil, false
	}
	cp := ce.entry
	return &cp, true
}

func (c *readCache) putEntry(e *model.Entry) {
	if c.ttl <= 0 || e == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.ID] = cachedEntry{entry: *e, expires: time.Now().Add(c.ttl)}
}

func (c *readCache) getListing() ([]model.Entry, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listing == nil || time.Now().After(c.listing.expires) {
		c.listing = nil
		return nil, false
	}
	out := make([]model.Entry, len(c.listing.entries))
	copy(out, c.listing.entries)
	return out, true
}

func (c *readCache) putListing(entries []model.Entry) {
	if c.ttl <= 0 {
		return
	}
	cp := make([]model.Entry, len(entries))
	copy(cp, entries)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing = &cachedListing{entries: cp, expires: time.Now().Add(c.ttl)}
}

// invalidate drops everything. Called after every successful write so reads
// never serve a pre-write view of the repository.
func (c *readCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[int64]cachedEntry{}
	c.listing = nil
}
