// Package lockmgr implements the path-keyed reader/writer lock table a
// compound acquires across every path it touches before it is allowed to
// start mutating, and releases as a single unit when it ends.
//
// Paths are deduplicated with "write wins" merge semantics (a path
// requested for both read and write in the same compound is locked
// exclusive), acquisition is all-or-nothing under one mutex (either every
// path in the batch can be locked or none are), and shared holders are
// refcounted so N readers of the same path release independently.
package lockmgr

import (
	"path"
	"sort"
	"sync"

	"github.com/txnfsal/txnfsal/pkg/fsal"
)

// Request is one path's desired lock mode.
type Request struct {
	Path      string
	Exclusive bool
}

type heldLock struct {
	exclusive bool
	refcount  int
}

// Manager is the process-global path lock table.
type Manager struct {
	mu      sync.Mutex
	paths   map[string]*heldLock
	metrics *Metrics
}

// New returns an empty lock table with no metrics collection.
func New() *Manager {
	return &Manager{paths: make(map[string]*heldLock)}
}

// NewWithMetrics returns an empty lock table instrumented with metrics.
func NewWithMetrics(metrics *Metrics) *Manager {
	return &Manager{paths: make(map[string]*heldLock), metrics: metrics}
}

// Handle represents a successfully acquired batch of locks; Unlock releases
// every path it holds.
type Handle struct {
	mgr   *Manager
	paths []string
}

// mergeRequests cleans each path and merges duplicates, with any exclusive
// request for a path superseding a shared request for the same path
// regardless of request order.
func mergeRequests(reqs []Request) []Request {
	merged := make(map[string]bool) // path -> exclusive
	order := make([]string, 0, len(reqs))
	for _, r := range reqs {
		clean := path.Clean(r.Path)
		exclusive, seen := merged[clean]
		if !seen {
			order = append(order, clean)
		}
		merged[clean] = exclusive || r.Exclusive
	}
	out := make([]Request, 0, len(order))
	for _, p := range order {
		out = append(out, Request{Path: p, Exclusive: merged[p]})
	}
	// A fixed ordering (not required for correctness since acquisition is
	// all-or-nothing under a single mutex, but keeps tests deterministic).
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// couldLock reports whether req could be granted against the table's
// current state, without mutating it. Caller must hold mu.
func (m *Manager) couldLock(req Request) bool {
	existing, held := m.paths[req.Path]
	if !held {
		return true
	}
	return !req.Exclusive && !existing.exclusive
}

// TryLock attempts to acquire every path in reqs as a single atomic batch:
// either all paths are granted, or none are and a nil handle is returned.
func (m *Manager) TryLock(reqs []Request) (*Handle, error) {
	clean := mergeRequests(reqs)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range clean {
		if !m.couldLock(r) {
			m.metrics.observeAcquire(false, len(m.paths))
			return nil, nil
		}
	}

	locked := make([]string, 0, len(clean))
	for _, r := range clean {
		if existing, held := m.paths[r.Path]; held {
			existing.refcount++
		} else {
			m.paths[r.Path] = &heldLock{exclusive: r.Exclusive, refcount: 1}
		}
		locked = append(locked, r.Path)
	}
	m.metrics.observeAcquire(true, len(m.paths))
	return &Handle{mgr: m, paths: locked}, nil
}

// Lock spins on TryLock until every path is granted, as a blocking
// counterpart for callers that want to wait rather than retry themselves.
// A request-processing goroutine should strongly prefer a bounded wait
// wrapped around TryLock instead, since this never returns an error or
// times out.
func (m *Manager) Lock(reqs []Request) *Handle {
	for {
		h, _ := m.TryLock(reqs)
		if h != nil {
			return h
		}
	}
}

// Unlock releases every path the handle holds, decrementing shared
// refcounts and only dropping the table entry once it reaches zero.
func (h *Handle) Unlock() {
	if h == nil {
		return
	}
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()

	for _, p := range h.paths {
		existing, held := h.mgr.paths[p]
		if !held {
			continue
		}
		existing.refcount--
		if existing.refcount <= 0 {
			delete(h.mgr.paths, p)
		}
	}
}

// AcquireForCompound is a convenience wrapper returning a typed error when
// the batch cannot be granted immediately, for callers that want to
// surface a lock conflict rather than retry.
func (m *Manager) AcquireForCompound(reqs []Request) (*Handle, error) {
	h, err := m.TryLock(reqs)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fsal.NewLockConflictError("")
	}
	return h, nil
}
