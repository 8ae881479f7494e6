package database

import "context"

// Conn is one physical connection as seen by the pool manager.
// Drivers return it unconnected from Dialer.Dial; the manager calls Connect
// exactly once before the first Exec.
//
// A Conn is never used by two statements at the same time.
type Conn interface {
	// Connect opens the network connection.
	Connect(ctx context.Context) error

	// Exec runs one statement. Statements that produce rows (select, call,
	// show, ...) fill Result.Rows; the rest fill RowsAffected/LastInsertID.
	Exec(ctx context.Context, statement string, args ...any) (*Result, error)

	// Errors delivers asynchronous driver failures noticed outside of Exec,
	// typically *DriverError values from the keepalive.
	Errors() <-chan error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Dialer builds unconnected Conns from a connection config.
type Dialer interface {
	Dial(cfg ConnectionConfig) Conn
}

// DialerFunc adapts a plain function to Dialer.
type DialerFunc func(cfg ConnectionConfig) Conn

func (f DialerFunc) Dial(cfg ConnectionConfig) Conn { return f(cfg) }

// Row is one result row keyed by column name.
type Row map[string]any

// Result is what a statement produced.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
	LastInsertID int64
}

// First returns the first row, or an empty Row when there are none.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return Row{}
	}
	return r.Rows[0]
}

// Rows is an abstraction over a driver result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
