package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/logger"
	"github.com/koustreak/waaa/internal/metrics"
)

// FatalHandler is called with errors a handle cannot recover from: fatal
// driver errors other than a lost connection. The default handler logs and
// panics, since the state of the session behind that handle is unknown.
type FatalHandler func(connection string, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithDialer registers the dialer used for connections of the given driver.
func WithDialer(driver Driver, d Dialer) Option {
	return func(m *Manager) { m.dialers[driver] = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l.Component("pool") }
}

// WithMetrics records pool activity on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithFatalHandler replaces the default log-and-panic handler.
func WithFatalHandler(fn FatalHandler) Option {
	return func(m *Manager) { m.onFatal = fn }
}

// Manager owns the handle registries and overflow queues of every named
// connection. Create one per process with New, initialize each connection
// name with SetConnection and share the *Manager with callers.
type Manager struct {
	configs map[string]ConnectionConfig
	dialers map[Driver]Dialer
	log     *logger.Logger
	metrics *metrics.Collector
	onFatal FatalHandler

	mu     sync.RWMutex
	conns  map[string]*connection
	closed bool

	events chan handleEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// connection is the per-name state: its registry and its queue.
type connection struct {
	cfg   ConnectionConfig
	reg   *registry
	queue *queue
}

// New creates a Manager for the given configs, keyed by connection name.
// Nothing is dialed until a query needs a handle.
func New(configs map[string]ConnectionConfig, opts ...Option) *Manager {
	m := &Manager{
		configs: make(map[string]ConnectionConfig, len(configs)),
		dialers: make(map[Driver]Dialer),
		log:     logger.Nop(),
		conns:   make(map[string]*connection),
		events:  make(chan handleEvent, 64),
		done:    make(chan struct{}),
	}
	for name, cfg := range configs {
		cfg.Name = name
		m.configs[name] = cfg.WithDefaults()
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.onFatal == nil {
		m.onFatal = m.panicOnFatal
	}

	m.wg.Add(1)
	go m.watch()
	return m
}

func (m *Manager) panicOnFatal(connection string, err error) {
	m.log.ErrorWith("unrecoverable driver error", err, logger.Fields{
		"connection": connection,
	})
	panic(fmt.Sprintf("waaa: unrecoverable error on connection %s: %v", connection, err))
}

// SetConnection initializes a connection name, allocating its pool of
// unconnected handles. Calling it again for the same name is a no-op.
func (m *Manager) SetConnection(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.New(errs.ErrKindConnectionUnknown, "pool manager is closed")
	}
	if _, ok := m.conns[name]; ok {
		return nil
	}

	cfg, ok := m.configs[name]
	if !ok {
		return errs.Newf(errs.ErrKindConnectionUnknown, "connection string %s does not exists in db conf", name)
	}
	dialer, ok := m.dialers[cfg.Driver]
	if !ok {
		return errs.Newf(errs.ErrKindInvalidInput, "no dialer registered for driver %q", cfg.Driver)
	}

	c := &connection{cfg: cfg}
	c.reg = newRegistry(name, cfg.PoolLimit, func() *handle {
		return newHandle(cfg, dialer, m.notify)
	})
	c.queue = newQueue(cfg.QueueLimit, cfg.QueueInterval, m.resubmit)
	m.conns[name] = c

	m.log.Connection(name).InfoWith("pool initialized", logger.Fields{
		"driver":      string(cfg.Driver),
		"pool_limit":  cfg.PoolLimit,
		"queue_limit": cfg.QueueLimit,
	})
	m.publish(c)
	return nil
}

func (m *Manager) lookup(name string) (*connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is closed", name)
	}
	c, ok := m.conns[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is unknown", name)
	}
	return c, nil
}

// QueryAsync runs statement on the named connection and reports the outcome
// to cb. It never blocks on the network: the statement runs on a free
// handle in its own goroutine, or waits in the overflow queue. A full queue
// fails the request with a ConnectionLimit error.
func (m *Manager) QueryAsync(ctx context.Context, name, statement string, args []any, cb Callback) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.submit(&request{
		ctx:       ctx,
		name:      name,
		statement: statement,
		args:      args,
		callback:  cb,
	})
}

// Query is the blocking form of QueryAsync. If ctx ends first Query returns
// a Timeout error; a request still waiting in the queue is then dropped
// instead of executed.
func (m *Manager) Query(ctx context.Context, name, statement string, args ...any) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	m.QueryAsync(ctx, name, statement, args, func(res *Result, err error) {
		ch <- outcome{res, err}
	})

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "query canceled", ctx.Err())
	}
}

func (m *Manager) submit(req *request) {
	c, err := m.lookup(req.name)
	if err != nil {
		req.complete(nil, err)
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.complete(nil, errs.Wrap(errs.ErrKindTimeout, "query canceled before execution", err))
		return
	}
	if m.dispatch(c, req) {
		return
	}

	if !c.queue.enqueue(req) {
		m.metrics.RecordRejected(req.name)
		m.log.WarnWith("query rejected", nil, logger.Fields{
			"connection":  req.name,
			"queue_limit": c.cfg.QueueLimit,
		})
	}
	m.publish(c)
}

// resubmit is called by the drain loop with the head of a queue. It reports
// false when there is still no handle, leaving the request queued.
func (m *Manager) resubmit(req *request) bool {
	c, err := m.lookup(req.name)
	if err != nil {
		req.complete(nil, err)
		return true
	}
	if err := req.ctx.Err(); err != nil {
		req.complete(nil, errs.Wrap(errs.ErrKindTimeout, "query canceled while queued", err))
		return true
	}
	return m.dispatch(c, req)
}

// dispatch starts req on a free handle, if there is one.
func (m *Manager) dispatch(c *connection, req *request) bool {
	h, fresh, ok := c.reg.acquire()
	if !ok {
		return false
	}
	m.publish(c)
	go m.run(c, h, fresh, req)
	return true
}

// run executes req on h and recycles the handle before reporting back.
func (m *Manager) run(c *connection, h *handle, fresh bool, req *request) {
	if fresh {
		if err := h.open(req.ctx); err != nil {
			m.log.WarnWith("failed to open connection", err, logger.Fields{
				"connection": c.cfg.Name,
				"handle":     h.id,
			})
			c.reg.discard(h)
			m.publish(c)
			req.complete(nil, err)
			return
		}
		m.log.DebugWith("connection opened", logger.Fields{
			"connection": c.cfg.Name,
			"handle":     h.id,
		})
	}

	ctx := req.ctx
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := h.exec(ctx, req.statement, req.args...)
	m.metrics.RecordQuery(c.cfg.Name, err, time.Since(start))

	c.reg.release(h)
	m.publish(c)

	if err != nil {
		m.log.DebugWith("query failed", logger.Fields{
			"connection": c.cfg.Name,
			"handle":     h.id,
			"error":      err.Error(),
		})
	}
	req.complete(res, err)
}

// notify is how handles report to the manager. After Close it drops events.
func (m *Manager) notify(ev handleEvent) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) watch() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.events:
			m.handleEvent(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) handleEvent(ev handleEvent) {
	name := ev.handle.cfg.Name
	fields := logger.Fields{
		"connection": name,
		"handle":     ev.handle.id,
	}

	switch ev.kind {
	case eventDriverError:
		m.log.WarnWith("driver error", ev.err, fields)

	case eventReconnecting:
		m.log.WarnWith("connection lost, reconnecting", ev.err, fields)

	case eventReconnected:
		fields["attempt"] = ev.attempt
		m.log.InfoWith("connection re-established", fields)
		m.metrics.RecordReconnect(name, true)

	case eventReconnectFailed:
		fields["attempts"] = ev.attempt
		m.log.ErrorWith("reconnect failed, retiring handle", ev.err, fields)
		m.metrics.RecordReconnect(name, false)
		m.retire(name, ev.handle)

	case eventFatal:
		m.metrics.RecordFatal(name)
		m.retire(name, ev.handle)
		m.onFatal(name, ev.err)
	}
}

func (m *Manager) retire(name string, h *handle) {
	c, err := m.lookup(name)
	if err != nil {
		return
	}
	c.reg.retire(h)
	m.publish(c)
}

func (m *Manager) publish(c *connection) {
	if m.metrics == nil {
		return
	}
	s := c.reg.stats()
	m.metrics.SetHandles(c.cfg.Name, s.Pool, s.Available, s.InUse)
	m.metrics.SetQueueDepth(c.cfg.Name, c.queue.len())
}

// Stats returns a snapshot of an initialized connection name.
func (m *Manager) Stats(name string) (Stats, error) {
	c, err := m.lookup(name)
	if err != nil {
		return Stats{}, err
	}
	s := c.reg.stats()
	s.Driver = c.cfg.Driver
	s.Queued = c.queue.len()
	s.QueueLimit = c.cfg.QueueLimit
	return s, nil
}

// Names lists the initialized connection names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured lists every configured connection name in sorted order.
func (m *Manager) Configured() []string {
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close fails every queued request and closes all idle handles. Handles
// still running a statement are closed as they finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := m.conns
	m.mu.Unlock()

	var result *multierror.Error
	for name, c := range conns {
		c.queue.close(errs.Newf(errs.ErrKindConnectionUnknown, "connection %s is closed", name))
		if err := c.reg.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("connection %s: %w", name, err))
		}
	}

	close(m.done)
	m.wg.Wait()

	m.log.Info("pool manager closed")
	return result.ErrorOrNil()
}
