package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *RouterConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Listen.BrokerAddr == "" {
		return errors.New("listen.broker_addr is required")
	}
	if c.Listen.MarketAddr == "" {
		return errors.New("listen.market_addr is required")
	}
	if c.Listen.BrokerAddr == c.Listen.MarketAddr {
		return fmt.Errorf("listen.broker_addr and listen.market_addr must differ, both are %q", c.Listen.BrokerAddr)
	}

	if c.Router.IdentitySeed < 0 {
		return fmt.Errorf("router.identity_seed must be >= 0, got %d", c.Router.IdentitySeed)
	}
	if c.Router.ReplayDelay < 0 {
		return errors.New("router.replay_delay must be >= 0")
	}
	if c.Router.WriteTimeout < 0 {
		return errors.New("router.write_timeout must be >= 0")
	}
	if c.Router.MaxLineBytes < 64 {
		return fmt.Errorf("router.max_line_bytes must be >= 64, got %d", c.Router.MaxLineBytes)
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
	}

	if c.Monitor.IsEnabled() {
		if c.Monitor.Addr == "" {
			return errors.New("monitor.addr is required")
		}
		if !strings.HasPrefix(c.Monitor.MetricsPath, "/") {
			return fmt.Errorf("monitor.metrics_path must start with /, got %q", c.Monitor.MetricsPath)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
