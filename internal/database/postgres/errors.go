package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrAdminShutdown      = "57P01"
	pgErrCrashShutdown      = "57P02"
	pgErrCannotConnectNow   = "57P03"
	pgErrTooManyConnections = "53300"
	pgErrInvalidCatalogName = "3D000"
	pgErrInsufficientPriv   = "42501"
	pgErrInvalidAuthSpec    = "28000"
	pgErrInvalidPassword    = "28P01"
	pgErrClassConnection    = "08"
	pgErrClassAuthorization = "28"
	pgSeverityFatal         = "FATAL"
	pgSeverityPanic         = "PANIC"
)

// mapError converts a pgx error into an *errs.Error, keeping the SQLSTATE as
// the code.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(
			classifyPgCode(pgErr.Code),
			fmt.Sprintf("%s: %s", msg, pgErr.Message),
			err,
		).WithCode(pgErr.Code)
	}

	if isConnectionLost(err) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err).WithCode(database.CodeConnectionLost)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyPgCode maps a SQLSTATE to ErrKind.
func classifyPgCode(code string) errs.ErrKind {
	switch {
	case strings.HasPrefix(code, pgErrClassAuthorization), code == pgErrInsufficientPriv:
		return errs.ErrKindPermissionDenied
	case strings.HasPrefix(code, pgErrClassConnection):
		return errs.ErrKindConnectionFailed
	}
	switch code {
	case pgErrAdminShutdown, pgErrCrashShutdown, pgErrCannotConnectNow,
		pgErrTooManyConnections, pgErrInvalidCatalogName:
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
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
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrAdminShutdown, pgErrCrashShutdown, pgErrCannotConnectNow:
			return true
		}
		return strings.HasPrefix(pgErr.Code, pgErrClassConnection)
	}

	var netErr net.Error
	return errors.As(err, &netErr) && !netErr.Timeout()
}

// isFatal reports server errors after which the session cannot be trusted
// and that a reconnect will not fix.
func isFatal(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgErrInvalidAuthSpec, pgErrInvalidPassword, pgErrInvalidCatalogName:
		return true
	}
	return pgErr.Severity == pgSeverityFatal || pgErr.Severity == pgSeverityPanic
}

// driverError classifies an error seen outside of a statement for the
// handle supervisor.
func driverError(err error) *database.DriverError {
	if isConnectionLost(err) {
		return database.LostConnection(err)
	}
	code := "UNKNOWN"
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}
	return &database.DriverError{Code: code, Fatal: isFatal(err), Err: err}
}
