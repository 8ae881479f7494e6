package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/waaa/internal/errs"
)

type handleState int

const (
	stateUnconnected handleState = iota
	stateConnecting
	stateReady
	stateReconnecting
	stateClosed
)

func (s handleState) String() string {
	switch s {
	case stateUnconnected:
		return "unconnected"
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateReconnecting:
		return "reconnecting"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	eventDriverError eventKind = iota // non-fatal, logged only
	eventReconnecting
	eventReconnected
	eventReconnectFailed
	eventFatal
)

// handleEvent is how a handle reports health transitions to the manager.
// Handles never touch registry state themselves.
type handleEvent struct {
	kind    eventKind
	handle  *handle
	err     error
	attempt int
}

var closedReady = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// handle wraps one Conn and supervises it. On a lost connection it dials a
// replacement with the same config and swaps it in; statements issued while
// that happens wait for the outcome.
type handle struct {
	id     string
	cfg    ConnectionConfig
	dialer Dialer
	notify func(handleEvent)

	mu          sync.Mutex
	conn        Conn
	state       handleState
	ready       chan struct{} // closed whenever the handle is not reconnecting
	busy        bool
	interrupted error // fatal error that hit the statement in flight
	failure     error // why the handle is closed
	lostCause   error // set with stateReconnecting until the supervisor takes over

	// kick wakes the supervisor after exec saw the session die.
	kick chan struct{}

	// retired is guarded by the owning registry's mutex.
	retired bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newHandle(cfg ConnectionConfig, dialer Dialer, notify func(handleEvent)) *handle {
	return &handle{
		id:     uuid.NewString(),
		cfg:    cfg,
		dialer: dialer,
		notify: notify,
		conn:   dialer.Dial(cfg),
		state:  stateUnconnected,
		ready:  closedReady,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

func (h *handle) currentState() handleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// open connects a fresh handle and starts its supervisor.
func (h *handle) open(ctx context.Context) error {
	h.mu.Lock()
	if h.state != stateUnconnected {
		h.mu.Unlock()
		return errs.Newf(errs.ErrKindConnectionFailed, "handle %s is %s", h.id, h.state)
	}
	h.state = stateConnecting
	conn := h.conn
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		h.mu.Lock()
		h.state = stateClosed
		h.failure = err
		h.mu.Unlock()
		_ = conn.Close()
		if errs.KindOf(err) == errs.ErrKindUnknown {
			return errs.Wrap(errs.ErrKindConnectionFailed, "failed to open connection", err)
		}
		return err
	}

	h.mu.Lock()
	h.state = stateReady
	h.mu.Unlock()

	go h.supervise(conn)
	return nil
}

// exec runs one statement on the current connection.
func (h *handle) exec(ctx context.Context, statement string, args ...any) (*Result, error) {
	h.mu.Lock()
	ready := h.ready
	h.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "timed out waiting for reconnect", ctx.Err())
	}

	h.mu.Lock()
	if h.state != stateReady {
		failure := h.failure
		h.mu.Unlock()
		return nil, errs.Wrap(errs.ErrKindConnectionLost, "connection is not available", failure)
	}
	conn := h.conn
	h.busy = true
	h.interrupted = nil
	h.mu.Unlock()

	res, err := conn.Exec(ctx, statement, args...)

	h.mu.Lock()
	h.busy = false
	interrupted := h.interrupted
	h.interrupted = nil
	lost := interrupted == nil && IsConnectionLost(err) && h.markLostLocked(conn, err)
	h.mu.Unlock()

	if lost {
		select {
		case h.kick <- struct{}{}:
		default:
		}
	}
	if interrupted != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionLost, "connection failed while executing statement", interrupted)
	}
	return res, err
}

// markLostLocked switches a ready handle to reconnecting, so that it can be
// released right away without anyone running on the dead session. It
// reports false when conn is no longer current or a reconnect is underway.
func (h *handle) markLostLocked(conn Conn, cause error) bool {
	if h.conn != conn || h.state != stateReady {
		return false
	}
	h.state = stateReconnecting
	h.ready = make(chan struct{})
	h.lostCause = cause
	return true
}

// wakeLocked lets statements waiting on ready continue.
func (h *handle) wakeLocked() {
	if h.ready != closedReady {
		close(h.ready)
		h.ready = closedReady
	}
}

// supervise watches the driver's error channel until the handle is closed
// or hits an error it cannot recover from.
func (h *handle) supervise(conn Conn) {
	errCh := conn.Errors()
	for {
		var (
			next  Conn
			alive bool
		)
		select {
		case <-h.stop:
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			next, alive = h.handleError(conn, err)
		case <-h.kick:
			h.mu.Lock()
			cause := h.lostCause
			pending := h.conn == conn && h.state == stateReconnecting && cause != nil
			h.mu.Unlock()
			if !pending {
				continue
			}
			var rerr error
			next, rerr = h.reconnect(conn, cause)
			alive = rerr == nil
		}
		if !alive {
			return
		}
		if next != conn {
			conn = next
			errCh = conn.Errors()
		}
	}
}

func (h *handle) handleError(conn Conn, err error) (Conn, bool) {
	de, ok := asDriverError(err)
	if !ok || !de.Fatal {
		h.notify(handleEvent{kind: eventDriverError, handle: h, err: err})
		return conn, true
	}

	if de.ConnectionLost() {
		next, rerr := h.reconnect(conn, de)
		if rerr != nil {
			return nil, false
		}
		return next, true
	}

	h.mu.Lock()
	if h.busy {
		h.interrupted = de
	}
	h.state = stateClosed
	h.failure = de
	h.wakeLocked()
	h.mu.Unlock()

	h.notify(handleEvent{kind: eventFatal, handle: h, err: de})
	return nil, false
}

// reconnect replaces a lost connection, retrying with exponential backoff.
// Statements issued meanwhile wait on ready.
func (h *handle) reconnect(old Conn, cause error) (Conn, error) {
	h.mu.Lock()
	if h.state == stateClosed {
		h.mu.Unlock()
		return nil, errs.New(errs.ErrKindConnectionLost, "handle closed")
	}
	if h.state != stateReconnecting {
		h.state = stateReconnecting
		h.ready = make(chan struct{})
	}
	h.lostCause = nil
	h.mu.Unlock()

	h.notify(handleEvent{kind: eventReconnecting, handle: h, err: cause})
	_ = old.Close()

	delay := h.cfg.ReconnectDelay
	lastErr := cause
	for attempt := 1; attempt <= h.cfg.ReconnectAttempts; attempt++ {
		conn := h.dialer.Dial(h.cfg)

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ConnectTimeout)
		err := conn.Connect(ctx)
		cancel()

		if err == nil {
			h.mu.Lock()
			if h.state == stateClosed {
				// closed while dialing
				h.wakeLocked()
				h.mu.Unlock()
				_ = conn.Close()
				return nil, errs.New(errs.ErrKindConnectionLost, "handle closed during reconnect")
			}
			h.conn = conn
			h.state = stateReady
			h.wakeLocked()
			h.mu.Unlock()
			h.notify(handleEvent{kind: eventReconnected, handle: h, attempt: attempt})
			return conn, nil
		}

		_ = conn.Close()
		lastErr = err

		if attempt == h.cfg.ReconnectAttempts {
			break
		}
		select {
		case <-h.stop:
			h.mu.Lock()
			h.wakeLocked()
			h.mu.Unlock()
			return nil, errs.New(errs.ErrKindConnectionLost, "handle closed during reconnect")
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}

	h.mu.Lock()
	h.state = stateClosed
	h.failure = lastErr
	h.wakeLocked()
	h.mu.Unlock()

	h.notify(handleEvent{kind: eventReconnectFailed, handle: h, err: lastErr, attempt: h.cfg.ReconnectAttempts})
	return nil, lastErr
}

// close stops supervision and releases the connection. It does not wait for
// the supervisor to exit.
func (h *handle) close() error {
	var err error
	h.stopOnce.Do(func() {
		close(h.stop)
		h.mu.Lock()
		conn := h.conn
		h.state = stateClosed
		if h.failure == nil {
			h.failure = errs.New(errs.ErrKindConnectionLost, "handle closed")
		}
		h.wakeLocked()
		h.mu.Unlock()
		err = conn.Close()
	})
	return err
}
