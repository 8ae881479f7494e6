// Package config loads the waaa YAML document, applies .env and environment
// overrides, and turns it into the pool manager's connection configs.
//
// Usage:
//
//	cfg, err := config.Load(ctx, "waaa.yaml")
//	if err != nil { ... }
//	conns, err := cfg.ConnectionConfigs()
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/filestore"
	"github.com/koustreak/waaa/internal/logger"
)

// Config is the whole document.
type Config struct {
	Log            logger.Config         `yaml:"log"`
	Admin          AdminConfig           `yaml:"admin"`
	Metrics        MetricsConfig         `yaml:"metrics"`
	Store          filestore.Config      `yaml:"store"`
	ConnectionPool PoolConfig            `yaml:"connection_pool"`
	Connections    map[string]Connection `yaml:"connections"`
}

// AdminConfig configures the health and stats endpoint.
type AdminConfig struct {
	Addr            string   `yaml:"addr"` // empty disables the admin server
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// PoolConfig holds pool settings shared by every connection that does not
// set its own.
type PoolConfig struct {
	Limit         int      `yaml:"limit"`
	QueueLimit    int      `yaml:"queue_limit"`
	QueueInterval Duration `yaml:"queue_interval"`
}

// Connection is one entry under connections.
type Connection struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	PoolLimit     int      `yaml:"pool_limit"`
	QueueLimit    int      `yaml:"queue_limit"`
	QueueInterval Duration `yaml:"queue_interval"`

	ConnectTimeout    Duration `yaml:"connect_timeout"`
	QueryTimeout      Duration `yaml:"query_timeout"`
	PingInterval      Duration `yaml:"ping_interval"`
	ReconnectAttempts int      `yaml:"reconnect_attempts"`
	ReconnectDelay    Duration `yaml:"reconnect_delay"`
}

// Default returns the document used when a key is missing.
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		Admin: AdminConfig{
			Addr:            ":8081",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Metrics: MetricsConfig{Namespace: "waaa"},
		ConnectionPool: PoolConfig{
			Limit:         database.DefaultPoolLimit,
			QueueLimit:    database.DefaultQueueLimit,
			QueueInterval: Duration(database.DefaultQueueInterval),
		},
	}
}

// Parse decodes raw YAML on top of Default. It does not look at the
// environment.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config", err)
	}
	return cfg, nil
}

// Validate checks every connection after pool defaults are applied.
func (c *Config) Validate() error {
	if len(c.Connections) == 0 {
		return errs.New(errs.ErrKindInvalidInput, "no connections configured")
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Store.Endpoint != "" {
		if err := c.Store.Validate(); err != nil {
			return err
		}
	}
	if c.ConnectionPool.Limit < 0 || c.ConnectionPool.QueueLimit < 0 {
		return errs.New(errs.ErrKindInvalidInput, "connection_pool limits must not be negative")
	}
	_, err := c.ConnectionConfigs()
	return err
}

// ConnectionConfigs converts the connections section into manager configs,
// filling unset pool values from connection_pool.
func (c *Config) ConnectionConfigs() (map[string]database.ConnectionConfig, error) {
	out := make(map[string]database.ConnectionConfig, len(c.Connections))
	for _, name := range c.Names() {
		conn := c.Connections[name]
		cc := database.ConnectionConfig{
			Name:              name,
			Driver:            database.Driver(strings.ToLower(conn.Driver)),
			Host:              conn.Host,
			Port:              conn.Port,
			User:              conn.User,
			Password:          conn.Password,
			Database:          conn.Database,
			SSLMode:           conn.SSLMode,
			PoolLimit:         firstPositive(conn.PoolLimit, c.ConnectionPool.Limit),
			QueueLimit:        firstPositive(conn.QueueLimit, c.ConnectionPool.QueueLimit),
			QueueInterval:     time.Duration(firstPositive(conn.QueueInterval, c.ConnectionPool.QueueInterval)),
			ConnectTimeout:    time.Duration(conn.ConnectTimeout),
			QueryTimeout:      time.Duration(conn.QueryTimeout),
			PingInterval:      time.Duration(conn.PingInterval),
			ReconnectAttempts: conn.ReconnectAttempts,
			ReconnectDelay:    time.Duration(conn.ReconnectDelay),
		}
		if err := cc.Validate(); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid connection", err)
		}
		out[name] = cc
	}
	return out, nil
}

// Names returns the configured connection names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func firstPositive[T ~int | ~int64](vals ...T) T {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Duration is a time.Duration that reads either a Go duration string
// ("250ms", "1m") or a bare integer number of milliseconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return Duration(v), nil
}
