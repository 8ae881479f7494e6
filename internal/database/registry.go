package database

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// registry tracks the handles of one connection name. Every handle is in
// exactly one of pool (never opened), available (open and idle) or inUse,
// and the three always add up to limit.
type registry struct {
	name      string
	limit     int
	newHandle func() *handle

	mu        sync.Mutex
	pool      []*handle
	available []*handle
	inUse     map[*handle]struct{}
	closed    bool
}

// Stats is a snapshot of one connection name.
type Stats struct {
	Name       string `json:"name"`
	Driver     Driver `json:"driver"`
	Limit      int    `json:"limit"`
	Pool       int    `json:"pool"`
	Available  int    `json:"available"`
	InUse      int    `json:"in_use"`
	Queued     int    `json:"queued"`
	QueueLimit int    `json:"queue_limit"`
}

func newRegistry(name string, limit int, newHandle func() *handle) *registry {
	r := &registry{
		name:      name,
		limit:     limit,
		newHandle: newHandle,
		pool:      make([]*handle, 0, limit),
		available: make([]*handle, 0, limit),
		inUse:     make(map[*handle]struct{}, limit),
	}
	for i := 0; i < limit; i++ {
		r.pool = append(r.pool, newHandle())
	}
	return r
}

// acquire moves a handle into inUse, preferring one that is already open.
// fresh reports that the handle came from pool and must be opened first.
// Open handles are reused last-in first-out: the most recently released
// session is the one least likely to have been dropped by the server, and
// idle ones at the bottom are left to age out.
func (r *registry) acquire() (h *handle, fresh bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, false
	}
	if n := len(r.available); n > 0 {
		h = r.available[n-1]
		r.available = r.available[:n-1]
		r.inUse[h] = struct{}{}
		return h, false, true
	}
	if n := len(r.pool); n > 0 {
		h = r.pool[n-1]
		r.pool = r.pool[:n-1]
		r.inUse[h] = struct{}{}
		return h, true, true
	}
	return nil, false, false
}

// release returns a handle after its statement completed. A handle is
// released at most once per acquire; extra calls report false.
func (r *registry) release(h *handle) bool {
	r.mu.Lock()
	if _, ok := r.inUse[h]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.inUse, h)

	drop := r.closed || h.retired
	if !r.closed && h.retired {
		r.pool = append(r.pool, r.newHandle())
	}
	if !drop {
		r.available = append(r.available, h)
	}
	r.mu.Unlock()

	if drop {
		_ = h.close()
	}
	return true
}

// discard replaces a handle that failed to open with a fresh unconnected
// one, so the next attempt dials again.
func (r *registry) discard(h *handle) {
	r.mu.Lock()
	if _, ok := r.inUse[h]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.inUse, h)
	if !r.closed {
		r.pool = append(r.pool, r.newHandle())
	}
	r.mu.Unlock()

	_ = h.close()
}

// retire takes a broken handle out of service. An idle handle is replaced
// right away; one in use is replaced when it is released.
func (r *registry) retire(h *handle) {
	r.mu.Lock()
	if _, ok := r.inUse[h]; ok {
		h.retired = true
		r.mu.Unlock()
		return
	}
	found := false
	for i, a := range r.available {
		if a == h {
			r.available = append(r.available[:i], r.available[i+1:]...)
			found = true
			break
		}
	}
	if found && !r.closed {
		r.pool = append(r.pool, r.newHandle())
	}
	r.mu.Unlock()

	if found {
		_ = h.close()
	}
}

func (r *registry) stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Name:      r.name,
		Limit:     r.limit,
		Pool:      len(r.pool),
		Available: len(r.available),
		InUse:     len(r.inUse),
	}
}

// close closes every idle and unconnected handle. Handles still in use are
// closed when they are released.
func (r *registry) close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*handle, 0, len(r.pool)+len(r.available))
	handles = append(handles, r.pool...)
	handles = append(handles, r.available...)
	r.pool = nil
	r.available = nil
	r.mu.Unlock()

	var result *multierror.Error
	for _, h := range handles {
		if err := h.close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
