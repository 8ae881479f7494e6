package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

// Dialer creates PostgreSQL connections for the pool manager.
type Dialer struct{}

func (Dialer) Dial(cfg database.ConnectionConfig) database.Conn { return New(cfg) }

// session is the part of *pgx.Conn a Conn uses.
type session interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// Conn is a single PostgreSQL session implementing database.Conn.
type Conn struct {
	cfg     database.ConnectionConfig
	connect func(ctx context.Context) (session, error)

	mu   sync.Mutex // pgx.Conn is not safe for concurrent use
	sess session

	errCh     chan error
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unconnected PostgreSQL Conn.
func New(cfg database.ConnectionConfig) *Conn {
	return newConn(cfg, func(ctx context.Context) (session, error) {
		connCfg, err := buildConfig(cfg)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid postgres config", err)
		}
		conn, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, mapError(err, "connect to "+buildDSN(cfg, true)+" failed")
		}
		return conn, nil
	})
}

func newConn(cfg database.ConnectionConfig, connect func(ctx context.Context) (session, error)) *Conn {
	return &Conn{
		cfg:     cfg,
		connect: connect,
		errCh:   make(chan error, 1),
		stop:    make(chan struct{}),
	}
}

// Connect opens the session and starts the keepalive.
func (c *Conn) Connect(ctx context.Context) error {
	sess, err := c.connect(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.keepalive(c.cfg.PingInterval)
	}
	return nil
}

// Exec runs one statement. Row-returning statements are read fully.
func (c *Conn) Exec(ctx context.Context, statement string, args ...any) (*database.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "postgres connection is not open")
	}

	if database.ReturnsRows(statement) {
		rows, err := c.sess.Query(ctx, statement, args...)
		if err != nil {
			return nil, c.fail(err, "query failed")
		}
		res, err := database.ScanRows(&pgRows{rows: rows})
		if err != nil {
			return nil, c.fail(err, "query failed")
		}
		return res, nil
	}

	tag, err := c.sess.Exec(ctx, statement, args...)
	if err != nil {
		return nil, c.fail(err, "exec failed")
	}
	return &database.Result{Rows: []database.Row{}, RowsAffected: tag.RowsAffected()}, nil
}

// Errors delivers lost sessions and, from the keepalive, fatal server
// errors.
func (c *Conn) Errors() <-chan error { return c.errCh }

// Close stops the keepalive and closes the session.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sess == nil || c.sess.IsClosed() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := c.sess.Close(ctx); cerr != nil && !isConnectionLost(cerr) {
			err = mapError(cerr, "close failed")
		}
	})
	return err
}

// fail maps a statement error for the caller. Only a lost session is pushed
// on Errors, and it is also carried in the returned error. Must be called
// with mu held.
func (c *Conn) fail(err error, msg string) error {
	if isConnectionLost(err) || c.sess.IsClosed() {
		lost := database.LostConnection(err)
		c.emit(lost)
		return mapError(lost, msg)
	}
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return mapError(err, msg)
}

func (c *Conn) emit(de *database.DriverError) {
	select {
	case c.errCh <- de:
	default:
	}
}

func (c *Conn) keepalive(every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.mu.TryLock() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := c.sess.Ping(ctx)
			closed := c.sess.IsClosed()
			cancel()
			c.mu.Unlock()

			if err == nil {
				continue
			}
			de := driverError(err)
			if closed {
				de = database.LostConnection(err)
			}
			c.emit(de)
			if de.Fatal {
				return
			}
		}
	}
}

// --- pgRows wraps pgx.Rows ---

type pgRows struct{ rows pgx.Rows }

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgRows) Close()                 { r.rows.Close() }
func (r *pgRows) Err() error             { return r.rows.Err() }

func (r *pgRows) Columns() ([]string, error) {
	fields := r.rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols, nil
}
