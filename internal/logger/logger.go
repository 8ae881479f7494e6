// Package logger is the zerolog setup shared by the pool manager, the
// drivers and the admin server. Pool code logs through sub-loggers tagged
// with a component, and attaches connection and handle ids as fields.
package logger

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/koustreak/waaa/internal/errs"
)

// Logger wraps zerolog with the fields waaa attaches to pool activity.
type Logger struct {
	zlog zerolog.Logger
}

// Fields are extra key/values for one entry. They are written in key order.
type Fields map[string]interface{}

// Config is the log section of the waaa config document.
type Config struct {
	Level      string    `yaml:"level"`       // debug, info, warn, error, disabled
	Format     string    `yaml:"format"`      // json, console
	TimeFormat string    `yaml:"time_format"` // rfc3339, unix, unixms, unixmicro
	Output     io.Writer `yaml:"-"`
}

// DefaultConfig returns the settings used when no log section is given.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stdout,
	}
}

// Validate rejects unknown levels, formats and time formats. Empty values
// fall back to the defaults.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log format %q", c.Format)
	}
	if _, ok := timeFormats[strings.ToLower(c.TimeFormat)]; !ok && c.TimeFormat != "" {
		return errs.Newf(errs.ErrKindInvalidInput, "unknown log time format %q", c.TimeFormat)
	}
	return nil
}

// New creates a logger from cfg. A nil cfg means DefaultConfig. Invalid
// values fall back to defaults; call Config.Validate first to reject them.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = timeFormat(cfg.TimeFormat)

	var zlog zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		zlog = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		zlog = zerolog.New(out)
	}

	// Level is set per logger so several managers in one process do not
	// fight over zerolog's global level.
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zlog = zlog.Level(level).With().Timestamp().Logger()
	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or the global one.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return global
	}
	return &Logger{zlog: *zlog}
}

// With starts a child logger.
func (l *Logger) With() *Context {
	return &Context{ctx: l.zlog.With()}
}

// Component tags every entry with the subsystem that wrote it.
func (l *Logger) Component(name string) *Logger {
	return l.With().Str("component", name).Logger()
}

// Connection tags every entry with a connection name.
func (l *Logger) Connection(name string) *Logger {
	return l.With().Str("connection", name).Logger()
}

// Context wraps zerolog.Context for field chaining.
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Dur(key string, val time.Duration) *Context {
	c.ctx = c.ctx.Dur(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

func (l *Logger) DebugWith(msg string, fields Fields) {
	write(l.zlog.Debug(), msg, fields)
}

func (l *Logger) InfoWith(msg string, fields Fields) {
	write(l.zlog.Info(), msg, fields)
}

// WarnWith logs at warn level. A nil err adds no error field.
func (l *Logger) WarnWith(msg string, err error, fields Fields) {
	write(l.zlog.Warn().Err(err), msg, fields)
}

func (l *Logger) ErrorWith(msg string, err error, fields Fields) {
	write(l.zlog.Error().Err(err), msg, fields)
}

func write(event *zerolog.Event, msg string, fields Fields) {
	if event == nil {
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		event = event.Interface(k, fields[k])
	}
	event.Msg(msg)
}

// ParseLevel maps a config level name onto zerolog. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, errs.Newf(errs.ErrKindInvalidInput, "unknown log level %q", level)
	}
}

var timeFormats = map[string]string{
	"rfc3339":   time.RFC3339,
	"unix":      zerolog.TimeFormatUnix,
	"unixms":    zerolog.TimeFormatUnixMs,
	"unixmicro": zerolog.TimeFormatUnixMicro,
}

func timeFormat(name string) string {
	if f, ok := timeFormats[strings.ToLower(name)]; ok {
		return f
	}
	return time.RFC3339
}

var global = New(nil)

// Global returns the process-wide logger.
func Global() *Logger {
	return global
}

// SetGlobal replaces the process-wide logger. It is not safe to call while
// other goroutines log through Global.
func SetGlobal(l *Logger) {
	global = l
}
