// Command waaa runs the pool manager for every configured connection and
// serves health, pool statistics and Prometheus metrics.
//
// Usage:
//
//	waaa -config waaa.yaml
//	waaa -config minio://configs/waaa.yaml   # WAAA_STORE_* select the server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koustreak/waaa/internal/config"
	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/database/mysql"
	"github.com/koustreak/waaa/internal/database/postgres"
	"github.com/koustreak/waaa/internal/logger"
	"github.com/koustreak/waaa/internal/metrics"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", "waaa.yaml", "config file path or minio://bucket/key")
	envFile := flag.String("env", ".env", "dotenv file with WAAA_* overrides")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("waaa", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "waaa: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envFile string) error {
	cfg, err := config.Load(ctx, configPath, config.WithEnvFile(envFile))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	conns, err := cfg.ConnectionConfigs()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace)
	m := database.New(conns,
		database.WithDialer(database.DriverMySQL, mysql.Dialer{}),
		database.WithDialer(database.DriverPostgres, postgres.Dialer{}),
		database.WithLogger(log),
		database.WithMetrics(collector),
	)
	defer func() {
		if err := m.Close(); err != nil {
			log.ErrorWith("failed to close pool manager", err, nil)
		}
	}()

	for _, name := range cfg.Names() {
		if err := m.SetConnection(name); err != nil {
			return fmt.Errorf("set connection %s: %w", name, err)
		}
	}

	log.InfoWith("waaa started", logger.Fields{
		"version":     Version,
		"connections": m.Names(),
		"admin_addr":  cfg.Admin.Addr,
	})

	if cfg.Admin.Addr == "" {
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           newRouter(m, collector, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		timeout := time.Duration(cfg.Admin.ShutdownTimeout)
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
