package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/fixrouter/internal/config"
	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/database"
	"github.com/rickgao/fixrouter/internal/journal"
	"github.com/rickgao/fixrouter/internal/metrics"
	"github.com/rickgao/fixrouter/internal/monitor"
	"github.com/rickgao/fixrouter/internal/registry"
	"github.com/rickgao/fixrouter/internal/router"
	"github.com/rickgao/fixrouter/internal/session"
	"github.com/rickgao/fixrouter/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting router",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := registry.New(cfg.Router.IdentitySeed)
	m := metrics.New()
	m.RegisterPending(reg.PendingTotal)
	hub := monitor.NewHub(logger)

	routerObservers := []router.Observer{m, hub}

	// Optional journal
	var (
		pool   *pgxpool.Pool
		writer *journal.Writer
	)
	if cfg.Journal.Enabled {
		db := cfg.Journal.Database
		logger.Info("connecting to journal database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)
		pool, err = database.Connect(ctx, db, cfg.Instance.ID)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to prepare journal schema", "error", err)
			os.Exit(1)
		}

		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
		m.RegisterJournal(writer.Stats)
		routerObservers = append(routerObservers, writer)
	}

	pipeline := router.New(reg, router.Config{StrictSender: cfg.Router.StrictSender}, logger, routerObservers...)

	listener := session.NewListener(session.Config{
		BrokerAddr:       cfg.Listen.BrokerAddr,
		MarketAddr:       cfg.Listen.MarketAddr,
		HandshakeTimeout: cfg.Router.HandshakeTimeout,
		ReplayDelay:      cfg.Router.ReplayDelay,
		Conn: connection.Config{
			WriteTimeout: cfg.Router.WriteTimeout,
			MaxLineBytes: cfg.Router.MaxLineBytes,
		},
	}, reg, pipeline, logger, m, hub)

	// Bind failure is the router's only fatal runtime error.
	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start listener", "error", err)
		os.Exit(1)
	}

	var mon *monitor.Server
	if cfg.Monitor.IsEnabled() {
		mon = monitor.NewServer(monitor.Config{
			Addr:        cfg.Monitor.Addr,
			MetricsPath: cfg.Monitor.MetricsPath,
			InstanceID:  cfg.Instance.ID,
		}, reg, m.Registry, hub, logger)
		if pool != nil {
			mon.SetDatabase(pool)
		}
		if err := mon.Start(ctx); err != nil {
			logger.Error("failed to start monitor server", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("router running",
		"broker_addr", listener.Addr(connection.RoleBroker).String(),
		"market_addr", listener.Addr(connection.RoleMarket).String(),
		"monitor", cfg.Monitor.IsEnabled(),
		"journal", cfg.Journal.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	if mon != nil {
		g.Go(func() error {
			if err := mon.Wait(); err != nil {
				return fmt.Errorf("monitor: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := listener.Stop(shutdownCtx); err != nil {
			logger.Warn("listener stop", "error", err)
		}
		reg.Close()
		if mon != nil {
			if err := mon.Stop(shutdownCtx); err != nil {
				logger.Warn("monitor stop", "error", err)
			}
		}
		if writer != nil {
			if err := writer.Stop(shutdownCtx); err != nil {
				logger.Warn("journal stop", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("router stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("router stopped")
}

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
