package mysql

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

// Dialer creates MySQL connections for the pool manager.
type Dialer struct{}

func (Dialer) Dial(cfg database.ConnectionConfig) database.Conn { return New(cfg) }

// Conn is a single MySQL session implementing database.Conn. It pins one
// *sql.Conn from a database/sql pool capped at one connection, so every
// statement runs in the same server session.
type Conn struct {
	cfg  database.ConnectionConfig
	open func(ctx context.Context) (*sql.DB, error)

	mu     sync.Mutex // one statement or ping at a time
	sqlDB  *sql.DB
	sqlCon *sql.Conn

	errCh     chan error
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates an unconnected MySQL Conn.
func New(cfg database.ConnectionConfig) *Conn {
	return newConn(cfg, func(ctx context.Context) (*sql.DB, error) {
		connector, err := mysql.NewConnector(buildConfig(cfg))
		if err != nil {
			return nil, err
		}
		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return db, nil
	})
}

func newConn(cfg database.ConnectionConfig, open func(ctx context.Context) (*sql.DB, error)) *Conn {
	return &Conn{
		cfg:   cfg,
		open:  open,
		errCh: make(chan error, 1),
		stop:  make(chan struct{}),
	}
}

// Connect opens and verifies the session, then starts the keepalive.
func (c *Conn) Connect(ctx context.Context) error {
	db, err := c.open(ctx)
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql config", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return mapError(err, "connect to "+buildDSN(c.cfg)+" failed")
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return mapError(err, "ping failed")
	}

	c.mu.Lock()
	c.sqlDB = db
	c.sqlCon = conn
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

	if c.sqlCon == nil {
		return nil, errs.New(errs.ErrKindConnectionFailed, "mysql connection is not open")
	}

	if database.ReturnsRows(statement) {
		rows, err := c.sqlCon.QueryContext(ctx, statement, args...)
		if err != nil {
			return nil, c.fail(ctx, err, "query failed")
		}
		res, err := database.ScanRows(&mysqlRows{rows: rows})
		if err != nil {
			return nil, c.fail(ctx, err, "query failed")
		}
		return res, nil
	}

	r, err := c.sqlCon.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, c.fail(ctx, err, "exec failed")
	}
	res := &database.Result{Rows: []database.Row{}}
	res.RowsAffected, _ = r.RowsAffected()
	res.LastInsertID, _ = r.LastInsertId()
	return res, nil
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

		var result *multierror.Error
		if c.sqlCon != nil {
			if cerr := c.sqlCon.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) && !isConnectionLost(cerr) {
				result = multierror.Append(result, cerr)
			}
		}
		if c.sqlDB != nil {
			if cerr := c.sqlDB.Close(); cerr != nil {
				result = multierror.Append(result, cerr)
			}
		}
		err = result.ErrorOrNil()
	})
	return err
}

// fail maps a statement error for the caller. Server errors stay with the
// caller even when isFatal would flag them; only a lost session is pushed on
// Errors. A lost session is also carried in the returned error, so the handle
// stops using it before it goes back to the pool.
func (c *Conn) fail(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		// the driver kills the network connection when a statement's
		// context ends mid-flight
		lost := database.LostConnection(err)
		c.emit(lost)
		return errs.Wrap(errs.ErrKindTimeout, msg, lost)
	}
	if isConnectionLost(err) {
		lost := database.LostConnection(err)
		c.emit(lost)
		return mapError(lost, msg)
	}
	if errs.KindOf(err) != errs.ErrKindUnknown {
		return err
	}
	return mapError(err, msg)
}

// emit never blocks: one pending error is enough for the supervisor.
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
			// a running statement proves the session is alive
			if !c.mu.TryLock() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := c.sqlCon.PingContext(ctx)
			cancel()
			c.mu.Unlock()

			if err == nil {
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) {
				err = database.LostConnection(err)
			}
			de, ok := err.(*database.DriverError)
			if !ok {
				de = driverError(err)
			}
			c.emit(de)
			if de.Fatal {
				return
			}
		}
	}
}

// --- mysqlRows wraps *sql.Rows ---

type mysqlRows struct{ rows *sql.Rows }

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
