package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectionConfig_WithDefaults(t *testing.T) {
	cfg := ConnectionConfig{Name: "main", Host: "db"}.WithDefaults()

	assert.Equal(t, DriverMySQL, cfg.Driver)
	assert.Equal(t, DefaultPoolLimit, cfg.PoolLimit)
	assert.Equal(t, DefaultQueueLimit, cfg.QueueLimit)
	assert.Equal(t, DefaultQueueInterval, cfg.QueueInterval)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultPingInterval, cfg.PingInterval)
	assert.Equal(t, DefaultReconnectAttempts, cfg.ReconnectAttempts)
	assert.Zero(t, cfg.QueryTimeout)
}

func TestConnectionConfig_WithDefaults_KeepsValues(t *testing.T) {
	cfg := ConnectionConfig{
		Driver:        DriverPostgres,
		PoolLimit:     3,
		QueueInterval: time.Second,
		PingInterval:  -1,
	}.WithDefaults()

	assert.Equal(t, 3, cfg.PoolLimit)
	assert.Equal(t, time.Second, cfg.QueueInterval)
	assert.Equal(t, time.Duration(-1), cfg.PingInterval)
	assert.Equal(t, DialectPostgres, cfg.Dialect())
}

func TestConnectionConfig_Validate(t *testing.T) {
	assert.NoError(t, ConnectionConfig{Name: "a", Host: "db"}.Validate())
	assert.Error(t, ConnectionConfig{Name: "a"}.Validate())
	assert.Error(t, ConnectionConfig{Name: "a", Host: "db", Driver: "oracle"}.Validate())
	assert.Error(t, ConnectionConfig{Name: "a", Host: "db", PoolLimit: -2}.Validate())
}
