// Package config loads the router's YAML configuration.
package config

import "time"

// RouterConfig is the root configuration for a router instance.
type RouterConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Listen   ListenConfig   `yaml:"listen"`
	Router   RoutingConfig  `yaml:"router"`
	Journal  JournalConfig  `yaml:"journal"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this router.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ListenConfig holds the two accept endpoints.
type ListenConfig struct {
	BrokerAddr string `yaml:"broker_addr"`
	MarketAddr string `yaml:"market_addr"`
}

// RoutingConfig holds identity, handshake and forwarding settings.
type RoutingConfig struct {
	IdentitySeed     int           `yaml:"identity_seed"` // first issued identity is seed+1
	ReplayDelay      time.Duration `yaml:"replay_delay"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	StrictSender     bool          `yaml:"strict_sender"`
	MaxLineBytes     int           `yaml:"max_line_bytes"`
}

// JournalConfig holds the optional PostgreSQL journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MonitorConfig holds the HTTP monitor settings.
type MonitorConfig struct {
	Enabled     *bool  `yaml:"enabled"` // nil means enabled
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// IsEnabled reports whether the monitor server should run.
func (m MonitorConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
