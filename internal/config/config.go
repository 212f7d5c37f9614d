// Package config loads the node's configuration from a YAML file with
// environment-variable overrides, grounded on DanDo385-go-edu's
// minis/38-config-loader-env-yaml and minis/50-mini-service-all-features
// internal/config packages (Load(path) reads YAML, then a pass of
// os.Getenv overrides scans known keys).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs a node needs at startup (spec section 6).
type Config struct {
	Listen struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"listen"`

	Advertise struct {
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
	} `yaml:"advertise"`

	BootstrapPeer string `yaml:"bootstrap_peer"` // "host:port", empty if none

	// SyncPeers lists the verification-API base URLs ("http://host:port")
	// internal/sync reconciles against each tick. Peer discovery over
	// internal/p2p only exchanges gossip addresses for the signed wire
	// protocol; it carries no verification-API port, so sync's peer set
	// is configured directly rather than derived from gossip.
	SyncPeers []string `yaml:"sync_peers"`

	TLS struct {
		CertPath string `yaml:"cert_path"`
		KeyPath  string `yaml:"key_path"`
	} `yaml:"tls"`

	SigningKeyPath string `yaml:"signing_key_path"`

	Difficulty int `yaml:"difficulty"`

	IngestInterval time.Duration `yaml:"ingest_interval"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	TickInterval   time.Duration `yaml:"tick_interval"`

	DBPath string `yaml:"db_path"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
	VerifyAddr  string `yaml:"verify_addr"`
}

// Default returns a Config with conservative defaults suitable for a
// single local node.
func Default() Config {
	var c Config
	c.Listen.Host = "0.0.0.0"
	c.Listen.Port = 7700
	c.Advertise.IP = "127.0.0.1"
	c.Advertise.Port = 7700
	c.TLS.CertPath = "axiom.crt"
	c.TLS.KeyPath = "axiom.key"
	c.SigningKeyPath = "axiom-signing.key"
	c.Difficulty = 4
	c.IngestInterval = time.Hour
	c.SyncInterval = 30 * time.Second
	c.TickInterval = time.Second
	c.DBPath = "axiom.db"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.MetricsAddr = ":9090"
	c.VerifyAddr = ":8080"
	return c
}

// Load reads YAML from path over top of Default(), then applies
// environment variable overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the AXIOM_-prefixed environment variables that
// may override a YAML-loaded field.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AXIOM_LISTEN_HOST"); v != "" {
		cfg.Listen.Host = v
	}
	if v := os.Getenv("AXIOM_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Listen.Port = n
		}
	}
	if v := os.Getenv("AXIOM_ADVERTISE_IP"); v != "" {
		cfg.Advertise.IP = v
	}
	if v := os.Getenv("AXIOM_ADVERTISE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Advertise.Port = n
		}
	}
	if v := os.Getenv("AXIOM_BOOTSTRAP_PEER"); v != "" {
		cfg.BootstrapPeer = v
	}
	if v := os.Getenv("AXIOM_SYNC_PEERS"); v != "" {
		cfg.SyncPeers = strings.Split(v, ",")
	}
	if v := os.Getenv("AXIOM_TLS_CERT_PATH"); v != "" {
		cfg.TLS.CertPath = v
	}
	if v := os.Getenv("AXIOM_TLS_KEY_PATH"); v != "" {
		cfg.TLS.KeyPath = v
	}
	if v := os.Getenv("AXIOM_SIGNING_KEY_PATH"); v != "" {
		cfg.SigningKeyPath = v
	}
	if v := os.Getenv("AXIOM_DIFFICULTY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Difficulty = n
		}
	}
	if v := os.Getenv("AXIOM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AXIOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AXIOM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("AXIOM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("AXIOM_VERIFY_ADDR"); v != "" {
		cfg.VerifyAddr = v
	}
}

// Validate checks fields that must hold for the node to start.
func (c Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port %d out of range", c.Listen.Port)
	}
	if c.Advertise.IP == "" {
		return fmt.Errorf("config: advertise.ip is required")
	}
	if c.Advertise.Port <= 0 || c.Advertise.Port > 65535 {
		return fmt.Errorf("config: advertise.port %d out of range", c.Advertise.Port)
	}
	if c.Difficulty <= 0 {
		return fmt.Errorf("config: difficulty must be positive")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.SigningKeyPath == "" {
		return fmt.Errorf("config: signing_key_path is required")
	}
	return nil
}
