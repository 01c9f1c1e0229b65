package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("SEQUENCE_SWEEP_INTERVAL", "5m")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.SequenceSweepInterval)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 10, cfg.SMTPConfig().BatchSize)
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreDriver:           DriverMemory,
		SequenceSweepInterval: time.Minute,
		TaskWorkers:           1,
		EmailBatchSize:        10,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"unknown driver":          func(c *Config) { c.StoreDriver = "sqlite" },
		"postgres needs password": func(c *Config) { c.StoreDriver = DriverPostgres },
		"zero interval":           func(c *Config) { c.SequenceSweepInterval = 0 },
		"no workers":              func(c *Config) { c.TaskWorkers = 0 },
		"no batch":                func(c *Config) { c.EmailBatchSize = 0 },
		"production needs secret": func(c *Config) { c.Environment = "production" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=crm", maskPassword("host=db password=hunter2 dbname=crm"))
	assert.Equal(t, "host=db password=*****", maskPassword("host=db password=hunter2"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}
