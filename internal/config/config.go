// Package config loads the service configuration from YAML with
// environment overrides for deploy-time secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Redis  RedisConfig  `yaml:"redis"`
	NATS   NATSConfig   `yaml:"nats"`
	Auth   AuthConfig   `yaml:"auth"`

	// Admin is the administrator address every contract instance answers
	// to.
	Admin string `yaml:"admin"`

	Contracts ContractsConfig    `yaml:"contracts"`
	Plan      SubscriptionConfig `yaml:"subscription"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Enabled bool   `yaml:"enabled"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// ContractConfig is one license contract instance. Price is hot-reloadable
// via the config watcher; everything else is fixed at startup.
type ContractConfig struct {
	Name    string        `yaml:"name"`
	Symbol  string        `yaml:"symbol"`
	Address string        `yaml:"address"`
	Asset   string        `yaml:"asset"`
	Price   uint64        `yaml:"price"`
	Period  time.Duration `yaml:"period"`
}

type ContractsConfig struct {
	Perpetual ContractConfig `yaml:"perpetual"`
	Fixed     ContractConfig `yaml:"fixed"`
	AutoRenew ContractConfig `yaml:"autorenew"`
}

// SubscriptionConfig is the single plan the authorization service sells.
type SubscriptionConfig struct {
	Address       string `yaml:"address"`
	Publisher     string `yaml:"publisher"`
	Token         string `yaml:"token"`
	Amount        uint64 `yaml:"amount"`
	PeriodSeconds uint64 `yaml:"period_seconds"`
	RelayerFee    uint64 `yaml:"relayer_fee"`
}

// Load reads the YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		DB:     DBConfig{MaxOpenConns: 25},
		NATS:   NATSConfig{Subject: "licensing.events"},
		Auth:   AuthConfig{TokenTTL: time.Hour},
	}
}

// applyEnv lets deploy tooling override secrets and endpoints without
// touching the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("LICENSING_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LICENSING_DB_DSN"); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv("LICENSING_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LICENSING_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("LICENSING_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("LICENSING_ADMIN_ADDRESS"); v != "" {
		c.Admin = v
	}
}
