package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() Config {
	return Config{
		Port:        "8080",
		CatalogPath: "catalog.yaml",
		CatalogTTL:  time.Minute,
		Store:       StoreMemory,
		SeatStore:   StoreMemory,
		Gateway:     Gateway{KeySecret: "s3cret", Timeout: time.Second, Sandbox: true},
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SEAT_STORE", "Redis")
	t.Setenv("GATEWAY_KEY_SECRET", "from-env")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, StoreRedis, cfg.SeatStore)
	assert.Equal(t, "from-env", cfg.Gateway.KeySecret)
	assert.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, time.Minute, cfg.CatalogTTL)
	assert.Contains(t, cfg.DB.DSN(), "host=db.internal port=5432")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "confreg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store: postgres
seat_store: postgres
catalog_path: /etc/confreg/catalog.yaml
catalog_ttl: 30s
db:
  name: conference
gateway:
  key_id: rzp_test
  key_secret: file-secret
  timeout: 2s
`), 0o600))
	t.Setenv("GATEWAY_KEY_SECRET", "env-wins")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "/etc/confreg/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 30*time.Second, cfg.CatalogTTL)
	assert.Equal(t, "conference", cfg.DB.Name)
	assert.Equal(t, "rzp_test", cfg.Gateway.KeyID)
	assert.Equal(t, "env-wins", cfg.Gateway.KeySecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "mysql" }, wantErr: "store must be"},
		{name: "unknown seat store", mutate: func(c *Config) { c.SeatStore = "etcd" }, wantErr: "seat_store must be"},
		{name: "redis without addr", mutate: func(c *Config) { c.SeatStore = StoreRedis }, wantErr: "redis_addr"},
		{name: "no secret", mutate: func(c *Config) { c.Gateway.KeySecret = "" }, wantErr: "key_secret"},
		{name: "zero timeout", mutate: func(c *Config) { c.Gateway.Timeout = 0 }, wantErr: "timeout"},
		{name: "live without key id", mutate: func(c *Config) { c.Gateway.Sandbox = false; c.Gateway.BaseURL = "https://gw" }, wantErr: "key_id"},
		{name: "no catalog", mutate: func(c *Config) { c.CatalogPath = "" }, wantErr: "catalog_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
