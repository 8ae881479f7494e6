package database

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/waaa/internal/errs"
)

// Callback receives the outcome of an asynchronous query. It is called
// exactly once, from an arbitrary goroutine.
type Callback func(*Result, error)

// request is one query waiting for, or holding, a handle.
type request struct {
	ctx       context.Context
	name      string
	statement string
	args      []any
	callback  Callback
}

func (r *request) complete(res *Result, err error) {
	if r.callback != nil {
		r.callback(res, err)
	}
}

// queue holds requests that found no free handle. Once something is queued a
// drain loop wakes every interval and offers the head request back to the
// manager; it exits as soon as the queue is empty.
type queue struct {
	limit    int
	interval time.Duration
	// resubmit reports whether the manager took the request. A request that
	// still finds no handle stays at the head.
	resubmit func(*request) bool

	mu      sync.Mutex
	items   []*request
	running bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// draining keeps ticks from overlapping. It is held for the resubmit
	// call only, not for the query itself.
	draining sync.Mutex
}

func newQueue(limit int, interval time.Duration, resubmit func(*request) bool) *queue {
	return &queue{
		limit:    limit,
		interval: interval,
		resubmit: resubmit,
		stop:     make(chan struct{}),
	}
}

// enqueue appends req, or completes it with a connection limit error when
// the queue is full.
func (q *queue) enqueue(req *request) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		req.complete(nil, errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is closed", req.name))
		return false
	}
	if len(q.items) >= q.limit {
		q.mu.Unlock()
		req.complete(nil, errs.New(errs.ErrKindConnectionLimit, "too many connections"))
		return false
	}
	q.items = append(q.items, req)
	q.startLocked()
	q.mu.Unlock()
	return true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) startLocked() {
	if q.running {
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.drain()
}

func (q *queue) drain() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if !q.tick() {
				return
			}
		}
	}
}

// tick resubmits at most one request. It returns false once the queue is
// empty, which ends the drain loop.
func (q *queue) tick() bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.running = false
		q.mu.Unlock()
		return false
	}
	if !q.draining.TryLock() {
		q.mu.Unlock()
		return true
	}
	defer q.draining.Unlock()

	// Only tick removes from the head, so req stays at items[0] while the
	// manager looks at it.
	req := q.items[0]
	q.mu.Unlock()

	if q.resubmit(req) {
		q.mu.Lock()
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()
	}
	return true
}

// close stops the drain loop and fails everything still waiting.
func (q *queue) close(reason error) {
	q.draining.Lock()
	defer q.draining.Unlock()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.items
	q.items = nil
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()
	for _, req := range pending {
		req.complete(nil, reason)
	}
}
