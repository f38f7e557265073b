package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "fixrouter"
	DefaultBrokerAddr       = ":5000"
	DefaultMarketAddr       = ":5001"
	DefaultIdentitySeed     = 100000
	DefaultReplayDelay      = 1 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultMaxLineBytes     = 64 * 1024
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 10000
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultMonitorAddr      = ":9090"
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *RouterConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Listen defaults
	if c.Listen.BrokerAddr == "" {
		c.Listen.BrokerAddr = DefaultBrokerAddr
	}
	if c.Listen.MarketAddr == "" {
		c.Listen.MarketAddr = DefaultMarketAddr
	}

	// Router defaults
	if c.Router.IdentitySeed == 0 {
		c.Router.IdentitySeed = DefaultIdentitySeed
	}
	if c.Router.ReplayDelay == 0 {
		c.Router.ReplayDelay = DefaultReplayDelay
	}
	if c.Router.WriteTimeout == 0 {
		c.Router.WriteTimeout = DefaultWriteTimeout
	}
	if c.Router.HandshakeTimeout == 0 {
		c.Router.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Router.MaxLineBytes == 0 {
		c.Router.MaxLineBytes = DefaultMaxLineBytes
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Journal.Database)

	// Monitor defaults
	if c.Monitor.Enabled == nil {
		enabled := true
		c.Monitor.Enabled = &enabled
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = DefaultMonitorAddr
	}
	if c.Monitor.MetricsPath == "" {
		c.Monitor.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
