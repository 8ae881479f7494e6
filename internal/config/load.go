package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/koustreak/waaa/internal/errs"
	"github.com/koustreak/waaa/internal/filestore"
	"github.com/koustreak/waaa/internal/filestore/minio"
)

// EnvPrefix starts every environment override, e.g. WAAA_LOG_LEVEL or
// WAAA_CONNECTIONS_MAIN_HOST.
const EnvPrefix = "WAAA_"

type loadOptions struct {
	envFile string
	environ func() []string
	store   filestore.Store
}

// Option customises Load.
type Option func(*loadOptions)

// WithEnvFile reads overrides from a dotenv file. Missing files are ignored.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithEnviron replaces os.Environ as the source of overrides.
func WithEnviron(fn func() []string) Option {
	return func(o *loadOptions) { o.environ = fn }
}

// WithStore sets the object store used for minio:// paths. Without it Load
// connects with the WAAA_STORE_* variables.
func WithStore(s filestore.Store) Option {
	return func(o *loadOptions) { o.store = s }
}

// Load reads path (a local file or minio://bucket/key), applies .env and
// environment overrides and validates the result.
func Load(ctx context.Context, path string, opts ...Option) (*Config, error) {
	o := loadOptions{envFile: ".env", environ: os.Environ}
	for _, opt := range opts {
		opt(&o)
	}

	env, err := readEnv(o.envFile, o.environ())
	if err != nil {
		return nil, err
	}

	raw, err := readSource(ctx, path, env, o.store)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readEnv merges the dotenv file under the process environment; real
// environment variables win.
func readEnv(envFile string, environ []string) (map[string]string, error) {
	env := make(map[string]string)
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			for k, v := range vals {
				env[k] = v
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read "+envFile, err)
		}
	}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env, nil
}

func readSource(ctx context.Context, path string, env map[string]string, store filestore.Store) ([]byte, error) {
	if !filestore.IsLocation(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			kind := errs.ErrKindInvalidInput
			if errors.Is(err, fs.ErrNotExist) {
				kind = errs.ErrKindNotFound
			}
			return nil, errs.Wrap(kind, "failed to read config "+path, err)
		}
		return raw, nil
	}

	loc, err := filestore.ParseLocation(path)
	if err != nil {
		return nil, err
	}
	if store == nil {
		storeCfg := &filestore.Config{Provider: filestore.ProviderMinIO}
		if err := applyStruct(storeCfg, env, EnvPrefix+"STORE_"); err != nil {
			return nil, err
		}
		d, err := minio.New(ctx, storeCfg)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		store = d
	}
	return filestore.ReadAll(ctx, store, loc, filestore.DefaultMaxSize)
}
