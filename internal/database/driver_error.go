package database

import (
	"errors"
	"fmt"
)

// CodeConnectionLost is the driver code for a connection the server or the
// network dropped. It is the only fatal code a handle recovers from.
const CodeConnectionLost = "PROTOCOL_CONNECTION_LOST"

// DriverError is what drivers push on Conn.Errors.
type DriverError struct {
	Code  string
	Fatal bool
	Err   error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *DriverError) Unwrap() error { return e.Err }

// ConnectionLost reports whether the error is a fatal connection drop.
func (e *DriverError) ConnectionLost() bool {
	return e.Fatal && e.Code == CodeConnectionLost
}

// LostConnection builds the fatal connection-loss event.
func LostConnection(cause error) *DriverError {
	return &DriverError{Code: CodeConnectionLost, Fatal: true, Err: cause}
}

func asDriverError(err error) (*DriverError, bool) {
	var de *DriverError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsConnectionLost reports whether err carries a lost-connection event.
// Drivers return one from Exec when the statement killed the session.
func IsConnectionLost(err error) bool {
	de, ok := asDriverError(err)
	return ok && de.ConnectionLost()
}
