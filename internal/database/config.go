package database

import (
	"fmt"
	"time"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Pool defaults, applied to any zero field of a ConnectionConfig.
const (
	DefaultPoolLimit      = 20
	DefaultQueueLimit     = 100
	DefaultQueueInterval  = 100 * time.Millisecond
	DefaultConnectTimeout = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second

	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 500 * time.Millisecond
	maxReconnectDelay        = 30 * time.Second
)

// ConnectionConfig describes one named logical database and how many
// connections the manager may hold to it. It is loaded once and treated as
// immutable afterwards.
type ConnectionConfig struct {
	// Name is the connection name callers pass to Query.
	Name string

	// Driver is the database engine (e.g. DriverMySQL).
	Driver Driver

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres only

	// Pool tuning
	PoolLimit     int           // number of handles kept for this connection name
	QueueLimit    int           // overflow queue capacity
	QueueInterval time.Duration // drain loop period

	// Timeouts
	ConnectTimeout time.Duration // time limit for opening one handle
	QueryTimeout   time.Duration // per-statement deadline, 0 = none
	PingInterval   time.Duration // keepalive used to notice dropped connections, <0 = off

	// Reconnect after a lost connection, doubling the delay between attempts.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// WithDefaults returns a copy of c with every unset pool or timeout field
// filled in. PingInterval is left alone when negative so callers can turn
// keepalives off explicitly.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Driver == "" {
		c.Driver = DriverMySQL
	}
	if c.PoolLimit <= 0 {
		c.PoolLimit = DefaultPoolLimit
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = DefaultQueueLimit
	}
	if c.QueueInterval <= 0 {
		c.QueueInterval = DefaultQueueInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	return c
}

// Dialect returns the statement dialect matching the driver.
func (c ConnectionConfig) Dialect() Dialect {
	if c.Driver == DriverPostgres {
		return DialectPostgres
	}
	return DialectMySQL
}

// Validate reports configuration that can never produce a working handle.
func (c ConnectionConfig) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, "":
	default:
		return fmt.Errorf("connection %q: unsupported driver %q", c.Name, c.Driver)
	}
	if c.Host == "" {
		return fmt.Errorf("connection %q: host is required", c.Name)
	}
	if c.PoolLimit < 0 || c.QueueLimit < 0 {
		return fmt.Errorf("connection %q: pool and queue limits must not be negative", c.Name)
	}
	return nil
}
