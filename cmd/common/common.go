// Package common provides shared utilities for shadowbid CLI commands:
// YAML configuration loading, logger setup, and factory functions for the
// oracle proof backend and the record store.
package common

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shadowbid/shadowbid/oracle"
	"github.com/shadowbid/shadowbid/services"
	"github.com/shadowbid/shadowbid/tdx"
)

// Config contains the auctiond settings.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`
	EnableCORS  bool   `yaml:"enable_cors"`

	Log struct {
		JSON  bool `yaml:"json"`
		Debug bool `yaml:"debug"`
	} `yaml:"log"`

	Oracle   OracleConfig   `yaml:"oracle"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// OracleConfig selects the winner-determination backend.
type OracleConfig struct {
	// Mode is "simulated" (in-process oracle, HMAC proofs) or "attested"
	// (external oracle posting results to /resolve with DCAP proofs).
	Mode string `yaml:"mode"`

	// TDXRemoteURL points at a remote quote verification service for the
	// attested mode. Empty means verify against the local TDX device.
	TDXRemoteURL string `yaml:"tdx_remote_url"`
}

// PostgresConfig enables persistent record storage.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	cfg := &Config{
		HTTPAddr: ":8080",
	}
	cfg.Oracle.Mode = "simulated"
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.Database = "shadowbid"
	return cfg
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// SetupLogger creates the process logger.
func SetupLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// NewProofBackend creates the attestation provider used to verify oracle
// result proofs in attested mode.
func NewProofBackend(cfg OracleConfig) oracle.AttestationProvider {
	if cfg.TDXRemoteURL != "" {
		return &tdx.RemoteProvider{URL: cfg.TDXRemoteURL, Timeout: 30 * time.Second}
	}
	return &tdx.Provider{}
}

// NewRecordStore creates the record store selected by the configuration.
func NewRecordStore(cfg PostgresConfig) (services.RecordStore, error) {
	if !cfg.Enabled {
		return services.NewInMemoryStore(), nil
	}
	return services.NewPostgresStore(&services.PostgresConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	})
}
