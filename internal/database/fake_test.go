package database

import (
	"context"
	"sync"
	"sync/atomic"
)

// fakeConn is an in-memory Conn. Statements are recorded on the dialer so
// tests can check execution order across handles.
type fakeConn struct {
	dialer     *fakeDialer
	connectErr error
	errCh      chan error

	mu        sync.Mutex
	connected bool
	closed    bool
}

func (c *fakeConn) Connect(ctx context.Context) error {
	c.dialer.connects.Add(1)
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Exec(ctx context.Context, statement string, args ...any) (*Result, error) {
	c.dialer.record(statement)
	if c.dialer.exec != nil {
		return c.dialer.exec(ctx, statement, args)
	}
	return &Result{Rows: []Row{}}, nil
}

func (c *fakeConn) Errors() <-chan error { return c.errCh }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

type fakeDialer struct {
	// connectErr decides the Connect outcome of the n-th dialed conn (1-based).
	connectErr func(n int) error
	exec       func(ctx context.Context, statement string, args []any) (*Result, error)

	connects atomic.Int32

	mu         sync.Mutex
	dials      int
	conns      []*fakeConn
	statements []string
}

func (d *fakeDialer) Dial(cfg ConnectionConfig) Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	c := &fakeConn{dialer: d, errCh: make(chan error, 4)}
	if d.connectErr != nil {
		c.connectErr = d.connectErr(d.dials)
	}
	d.conns = append(d.conns, c)
	return c
}

func (d *fakeDialer) record(statement string) {
	d.mu.Lock()
	d.statements = append(d.statements, statement)
	d.mu.Unlock()
}

func (d *fakeDialer) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statements...)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// connected returns the conns that are currently open.
func (d *fakeDialer) connected() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeConn
	for _, c := range d.conns {
		if c.isConnected() {
			out = append(out, c)
		}
	}
	return out
}

// gate makes exec block until release is called, reporting each start.
type gate struct {
	started chan string
	open    chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan string, 64), open: make(chan struct{})}
}

func (g *gate) exec(ctx context.Context, statement string, args []any) (*Result, error) {
	g.started <- statement
	select {
	case <-g.open:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Result{Rows: []Row{}}, nil
}

func (g *gate) release() { g.once.Do(func() { close(g.open) }) }
