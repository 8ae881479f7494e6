package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errTooManyConnections = 1040
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errNoDatabaseSelected = 1046
	errUnknownDatabase    = 1049
	errServerShutdown     = 1053
	errBadFieldError      = 1054
	errDuplicateEntry     = 1062
	errParseError         = 1064
	errNoSuchTable        = 1146
	errTooManyUserConns   = 1203
	errRowIsReferenced    = 1451
	errNoReferencedRow    = 1452
	errConnectionKilled   = 1927
	errServerGone         = 2006
	errServerLost         = 2013
)

var errorNames = map[uint16]string{
	errTooManyConnections: "ER_CON_COUNT_ERROR",
	errDBAccessDenied:     "ER_DBACCESS_DENIED_ERROR",
	errAccessDenied:       "ER_ACCESS_DENIED_ERROR",
	errNoDatabaseSelected: "ER_NO_DB_ERROR",
	errUnknownDatabase:    "ER_BAD_DB_ERROR",
	errServerShutdown:     "ER_SERVER_SHUTDOWN",
	errBadFieldError:      "ER_BAD_FIELD_ERROR",
	errDuplicateEntry:     "ER_DUP_ENTRY",
	errParseError:         "ER_PARSE_ERROR",
	errNoSuchTable:        "ER_NO_SUCH_TABLE",
	errTooManyUserConns:   "ER_TOO_MANY_USER_CONNECTIONS",
	errRowIsReferenced:    "ER_ROW_IS_REFERENCED_2",
	errNoReferencedRow:    "ER_NO_REFERENCED_ROW_2",
	errConnectionKilled:   "ER_CONNECTION_KILLED",
	errServerGone:         "CR_SERVER_GONE_ERROR",
	errServerLost:         "CR_SERVER_LOST",
}

func errorName(number uint16) string {
	if name, ok := errorNames[number]; ok {
		return name
	}
	return fmt.Sprintf("ER_%d", number)
}

// mapError converts a MySQL driver error into an *errs.Error, keeping the
// server's error name as the code.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		).WithCode(errorName(mysqlErr.Number))
	}

	if isConnectionLost(err) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err).WithCode(database.CodeConnectionLost)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDatabaseSelected, errUnknownDatabase:
		return errs.ErrKindConnectionFailed
	case errTooManyConnections, errTooManyUserConns:
		return errs.ErrKindConnectionFailed
	case errServerShutdown, errConnectionKilled, errServerGone, errServerLost:
		return errs.ErrKindConnectionFailed
	case errBadFieldError, errParseError, errNoSuchTable:
		return errs.ErrKindQueryFailed
	default:
		return errs.ErrKindQueryFailed
	}
}

// isConnectionLost reports whether err means the session is gone and a new
// connection is needed.
func isConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if database.IsConnectionLost(err) {
		return true
	}
	if errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errServerShutdown, errConnectionKilled, errServerGone, errServerLost:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) && !netErr.Timeout()
}

// isFatal reports server errors after which the session cannot be trusted
// and that a reconnect will not fix.
func isFatal(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	switch mysqlErr.Number {
	case errDBAccessDenied, errAccessDenied, errUnknownDatabase:
		return true
	}
	return false
}

// driverError classifies an error seen outside of a statement for the
// handle supervisor.
func driverError(err error) *database.DriverError {
	if isConnectionLost(err) {
		return database.LostConnection(err)
	}
	code := "UNKNOWN"
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		code = errorName(mysqlErr.Number)
	}
	return &database.DriverError{Code: code, Fatal: isFatal(err), Err: err}
}
