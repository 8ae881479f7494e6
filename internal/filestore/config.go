package filestore

import (
	"strings"

	"github.com/koustreak/waaa/internal/errs"
)

// Provider identifies an object storage backend. It doubles as the scheme
// of a Location.
type Provider string

const ProviderMinIO Provider = "minio"

// Config is the store section of the config document. The same fields are
// read from WAAA_STORE_* when the config document itself lives in the store.
type Config struct {
	Provider  Provider `yaml:"provider"`
	Endpoint  string   `yaml:"endpoint"` // host:port, no scheme
	AccessKey string   `yaml:"access_key"`
	SecretKey string   `yaml:"secret_key"`
	UseSSL    bool     `yaml:"use_ssl"`
	Region    string   `yaml:"region"`
}

// Validate fills in the provider and checks the endpoint.
func (c *Config) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderMinIO
	}
	if c.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported store provider %q", c.Provider)
	}
	if c.Endpoint == "" {
		return errs.New(errs.ErrKindInvalidInput, "store endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errs.Newf(errs.ErrKindInvalidInput, "store endpoint %q must be host:port without a scheme", c.Endpoint)
	}
	return nil
}
