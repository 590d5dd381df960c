package identitymap

import "github.com/txnfsal/txnfsal/pkg/fsal"

// EntryKind distinguishes the two shapes a compound cache entry can take.
type EntryKind int

const (
	// EntryCreate records that this compound allocated UUID for a newly
	// created object bound to HostHandle.
	EntryCreate EntryKind = iota
	// EntryDelete records that this compound destroyed the object bound
	// to UUID. HostHandle is carried along when already known, purely so
	// commit() can remove the reverse index entry without a lookup.
	EntryDelete
)

// CacheEntry is one append to a Cache: either a Create(uuid, host_handle)
// or a Delete(uuid[, host_handle]), per the data model's Compound Cache.
type CacheEntry struct {
	Kind       EntryKind
	UUID       fsal.UUID
	HostHandle []byte
}

// defaultCacheCap bounds the initial capacity for very large op counts; the
// data model calls for min(compound_op_count, a fixed cap).
const defaultCacheCap = 64

// Cache is the per-in-flight-compound write-back cache described in the data
// model: an ordered vector of entries, scanned linearly on every lookup
// before falling back to the persistent indices. It is append-only during a
// compound and is either committed as one KV batch or discarded untouched.
type Cache struct {
	entries []CacheEntry
}

// NewCache initializes a cache sized to min(opCount, defaultCacheCap); Go's
// append already grows the backing array geometrically beyond that, which
// is all the data model requires.
func NewCache(opCount int) *Cache {
	cap := opCount
	if cap <= 0 || cap > defaultCacheCap {
		cap = defaultCacheCap
	}
	return &Cache{entries: make([]CacheEntry, 0, cap)}
}

// Len reports the number of staged entries.
func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) recordCreate(uuid fsal.UUID, hostHandle []byte) {
	c.entries = append(c.entries, CacheEntry{Kind: EntryCreate, UUID: uuid, HostHandle: hostHandle})
}

func (c *Cache) recordDelete(uuid fsal.UUID, hostHandle []byte) {
	c.entries = append(c.entries, CacheEntry{Kind: EntryDelete, UUID: uuid, HostHandle: hostHandle})
}

// lookupByHandle scans the cache for the most recent entry touching
// hostHandle; ok is false if hostHandle is not mentioned by the cache at
// all, letting the caller fall through to the persistent reverse index.
func (c *Cache) lookupByHandle(hostHandle []byte) (entry CacheEntry, found bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if string(e.HostHandle) == string(hostHandle) {
			return e, true
		}
	}
	return CacheEntry{}, false
}

// lookupByUUID scans the cache for the most recent entry touching uuid.
func (c *Cache) lookupByUUID(uuid fsal.UUID) (entry CacheEntry, found bool) {
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.UUID == uuid {
			return e, true
		}
	}
	return CacheEntry{}, false
}
