// Package identitymap implements the persistent, crash-safe bidirectional
// mapping between client-visible UUIDs and the lower filesystem's native
// host-handles, together with the per-compound write-back cache that lets a
// compound read its own uncommitted creates and deletes.
//
// The UUID allocator uses a reservation-window scheme: a single
// in-process lock guards an in-memory next/max-reserved pair, the
// persistent high-water mark is a single "__next_uuid__" key, and a fresh
// window of windowSize ids is reserved (and durably persisted) exactly
// when the in-memory window is exhausted.
package identitymap

import (
	"encoding/binary"
	"sync"

	"github.com/txnfsal/txnfsal/internal/logger"
	"github.com/txnfsal/txnfsal/pkg/fsal"
	"github.com/txnfsal/txnfsal/pkg/kvstore"
)

// windowSize is the number of UUIDs reserved durably in one allocator step.
const windowSize = 256

// Map is the identity map service: one process-global instance, owning the
// allocator's in-memory cursor and a borrowed reference to the KV store.
type Map struct {
	store *kvstore.Store

	mu          sync.Mutex
	nextUUID    fsal.UUID
	maxReserved fsal.UUID
}

// Open initializes the allocator cursor from the persistent high-water
// mark, creating it (seeded to just above the reserved root range) if this
// is a fresh database, and immediately persists the first reservation
// window.
func Open(store *kvstore.Store) (*Map, error) {
	m := &Map{store: store}

	raw, ok, err := store.Get([]byte(kvstore.KeyNextUUID))
	if err != nil {
		return nil, err
	}
	if !ok {
		m.nextUUID = firstAllocatableUUID()
	} else {
		u, err := fsal.UUIDFromBytes(raw)
		if err != nil {
			return nil, fsal.NewStorageError("corrupt __next_uuid__ record")
		}
		m.nextUUID = u
	}

	m.maxReserved = addUUID(m.nextUUID, windowSize)
	if err := store.PutBatch([]kvstore.KV{
		{Key: []byte(kvstore.KeyNextUUID), Value: m.maxReserved.Bytes()},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// incrementUUID returns u+1 treating it as a big-endian 128-bit integer.
func incrementUUID(u fsal.UUID) fsal.UUID {
	return addUUID(u, 1)
}

// firstAllocatableUUID returns the first UUID outside the reserved low-2^64
// range (high-64 = 1, low-64 = 0), the allocator's starting point on a fresh
// database.
func firstAllocatableUUID() fsal.UUID {
	var u fsal.UUID
	binary.BigEndian.PutUint64(u[:8], 1)
	return u
}

// addUUID returns u+n treating it as a big-endian 128-bit integer.
func addUUID(u fsal.UUID, n uint64) fsal.UUID {
	lo := binary.BigEndian.Uint64(u[8:])
	hi := binary.BigEndian.Uint64(u[:8])
	newLo := lo + n
	if newLo < lo { // overflow into the high half
		hi++
	}
	var out fsal.UUID
	binary.BigEndian.PutUint64(out[:8], hi)
	binary.BigEndian.PutUint64(out[8:], newLo)
	return out
}

// AllocateUUID returns the next UUID, reserving a fresh window durably when
// the in-memory window is exhausted.
func (m *Map) AllocateUUID() (fsal.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nextUUID == m.maxReserved {
		newMax := addUUID(m.nextUUID, windowSize)
		if err := m.store.PutBatch([]kvstore.KV{
			{Key: []byte(kvstore.KeyNextUUID), Value: newMax.Bytes()},
		}); err != nil {
			return fsal.UUID{}, err
		}
		m.maxReserved = newMax
	}

	id := m.nextUUID
	m.nextUUID = incrementUUID(m.nextUUID)
	return id, nil
}

func uuidKey(u fsal.UUID) []byte {
	return append([]byte(kvstore.PrefixUUIDIndex), u.Bytes()...)
}

func handleKey(h []byte) []byte {
	return append([]byte(kvstore.PrefixHandleIndex), h...)
}

// BindNew allocates a UUID and records a Create entry in cache. Requires an
// active compound (a non-nil cache).
func (m *Map) BindNew(cache *Cache, hostHandle []byte) (fsal.UUID, error) {
	u, err := m.AllocateUUID()
	if err != nil {
		return fsal.UUID{}, err
	}
	cache.recordCreate(u, hostHandle)
	return u, nil
}

// BindAllocated records a Create entry for a UUID that was already reserved
// up front (e.g. from a compound's pre-allocated pool) once the lower FSAL
// op that consumes it returns its host-handle.
func (m *Map) BindAllocated(cache *Cache, uuid fsal.UUID, hostHandle []byte) {
	cache.recordCreate(uuid, hostHandle)
}

// MarkDeleted appends a Delete entry to cache; no persistent change yet.
func (m *Map) MarkDeleted(cache *Cache, uuid fsal.UUID, hostHandle []byte) {
	cache.recordDelete(uuid, hostHandle)
}

// ResolveUUID looks up the UUID bound to hostHandle: cache first, then the
// persistent reverse index.
func (m *Map) ResolveUUID(cache *Cache, hostHandle []byte) (fsal.UUID, bool, error) {
	if cache != nil {
		if e, found := cache.lookupByHandle(hostHandle); found {
			if e.Kind == EntryDelete {
				return fsal.UUID{}, false, nil
			}
			return e.UUID, true, nil
		}
	}
	raw, ok, err := m.store.Get(handleKey(hostHandle))
	if err != nil || !ok {
		return fsal.UUID{}, false, err
	}
	u, err := fsal.UUIDFromBytes(raw)
	if err != nil {
		return fsal.UUID{}, false, fsal.NewStorageError("corrupt reverse index entry")
	}
	return u, true, nil
}

// ResolveHandle looks up the host-handle bound to uuid: cache first, then
// the persistent forward index.
func (m *Map) ResolveHandle(cache *Cache, uuid fsal.UUID) ([]byte, bool, error) {
	if cache != nil {
		if e, found := cache.lookupByUUID(uuid); found {
			if e.Kind == EntryDelete {
				return nil, false, nil
			}
			return e.HostHandle, true, nil
		}
	}
	raw, ok, err := m.store.Get(uuidKey(uuid))
	if err != nil || !ok {
		return nil, false, err
	}
	return raw, true, nil
}

// Commit atomically applies every entry in cache to the persistent indices:
// Creates write both indices, Deletes remove from both. A single KV batch
// guarantees readers never observe a half-applied compound.
func (m *Map) Commit(cache *Cache) error {
	if cache == nil || cache.Len() == 0 {
		return nil
	}
	var writes []kvstore.KV
	var deletes [][]byte
	for _, e := range cache.entries {
		switch e.Kind {
		case EntryCreate:
			writes = append(writes,
				kvstore.KV{Key: uuidKey(e.UUID), Value: e.HostHandle},
				kvstore.KV{Key: handleKey(e.HostHandle), Value: e.UUID.Bytes()},
			)
		case EntryDelete:
			deletes = append(deletes, uuidKey(e.UUID))
			if e.HostHandle != nil {
				deletes = append(deletes, handleKey(e.HostHandle))
			}
		}
	}
	if err := m.store.PutAtomic(writes, deletes); err != nil {
		return err
	}
	logger.Debug("identity map cache committed", logger.CacheSize(cache.Len()))
	return nil
}

// Discard drops cache unchanged; persistent state is untouched. It exists
// as a named operation (rather than simply dropping the value) to mirror
// the data model's explicit commit-or-discard contract.
func (m *Map) Discard(cache *Cache) {
	if cache != nil {
		logger.Debug("identity map cache discarded", logger.CacheSize(cache.Len()))
	}
}

// BootstrapRoot returns the stable root UUID for rootHostHandle, binding it
// on first use via an implicit standalone commit outside any compound, so
// the root's UUID is stable across restarts (I2).
func (m *Map) BootstrapRoot(rootHostHandle []byte) (fsal.UUID, error) {
	root := fsal.RootUUID()
	_, ok, err := m.store.Get(handleKey(rootHostHandle))
	if err != nil {
		return fsal.UUID{}, err
	}
	if ok {
		return root, nil
	}
	err = m.store.PutAtomic([]kvstore.KV{
		{Key: uuidKey(root), Value: rootHostHandle},
		{Key: handleKey(rootHostHandle), Value: root.Bytes()},
	}, nil)
	if err != nil {
		return fsal.UUID{}, err
	}
	return root, nil
}
