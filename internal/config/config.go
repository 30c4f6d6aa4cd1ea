// Package config loads service settings from environment variables and an
// optional confreg.yaml file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Database holds PostgreSQL connection settings (DB_HOST, DB_PORT, ...).
type Database struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Gateway configures the payment gateway client.
type Gateway struct {
	BaseURL   string        `mapstructure:"base_url"`
	KeyID     string        `mapstructure:"key_id"`
	KeySecret string        `mapstructure:"key_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Sandbox replaces the HTTP client with an in-process gateway.
	Sandbox bool `mapstructure:"sandbox"`
}

// Config is the service configuration, loaded by Load from file, environment
// and defaults.
type Config struct {
	Port        string        `mapstructure:"port"`
	CatalogPath string        `mapstructure:"catalog_path"`
	CatalogTTL  time.Duration `mapstructure:"catalog_ttl"`
	Store       string        `mapstructure:"store"`
	SeatStore   string        `mapstructure:"seat_store"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	AMQPURL     string        `mapstructure:"amqp_url"`
	LogLevel    string        `mapstructure:"log_level"`
	DB          Database      `mapstructure:"db"`
	Gateway     Gateway       `mapstructure:"gateway"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("catalog_path", "catalog.yaml")
	v.SetDefault("catalog_ttl", time.Minute)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("seat_store", StoreMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "confreg:seats:")
	v.SetDefault("amqp_url", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "confreg")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("gateway.base_url", "https://api.razorpay.com")
	v.SetDefault("gateway.key_id", "")
	v.SetDefault("gateway.key_secret", "")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.sandbox", false)
}

// Load reads configuration. An empty path looks for ./confreg.yaml and
// carries on with defaults and environment if there is none. Environment
// variables win over the file: db.host is DB_HOST, gateway.key_secret is
// GATEWAY_KEY_SECRET.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("confreg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.SeatStore = strings.ToLower(strings.TrimSpace(cfg.SeatStore))
	return cfg, nil
}

// Validate reports the first setting the server cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("store must be %s or %s, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.SeatStore {
	case StorePostgres, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("seat_store must be %s, %s or %s, got %q", StorePostgres, StoreRedis, StoreMemory, c.SeatStore)
	}
	if c.SeatStore == StoreRedis && c.RedisAddr == "" {
		return errors.New("redis_addr is required when seat_store is redis")
	}
	if c.CatalogPath == "" {
		return errors.New("catalog_path is required")
	}
	if c.CatalogTTL < 0 {
		return errors.New("catalog_ttl must not be negative")
	}
	if c.Gateway.KeySecret == "" {
		return errors.New("gateway.key_secret is required to verify payment signatures")
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("gateway.timeout must be positive")
	}
	if !c.Gateway.Sandbox && (c.Gateway.BaseURL == "" || c.Gateway.KeyID == "") {
		return errors.New("gateway.base_url and gateway.key_id are required outside sandbox mode")
	}
	return nil
}
