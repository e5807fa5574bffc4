package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/aquaproc/internal/config"
	"github.com/me/aquaproc/internal/janitor"
	"github.com/me/aquaproc/internal/logging"
	"github.com/me/aquaproc/internal/metrics"
	"github.com/me/aquaproc/internal/process"
	"github.com/me/aquaproc/internal/runner"
	"github.com/me/aquaproc/internal/scheduler"
	"github.com/me/aquaproc/internal/server"
	"github.com/me/aquaproc/internal/store"
)

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.aquaproc/jobs.db)")
	flag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Service config file (default $"+config.ConfigFileEnv+" or "+config.DefaultConfigFile+")")
	grace := flag.Duration("shutdown-grace", 30*time.Second, "How long running jobs may finish after SIGTERM before their containers are killed")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	configPath := config.ResolvePath(cfg.ConfigFile)
	svc, err := config.LoadService(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load service config: %v\n", err)
		os.Exit(1)
	}
	logger.Info("service config loaded",
		"path", configPath,
		"image", svc.Image,
		"download_dir", svc.DownloadDir,
		"max_concurrent_jobs", svc.MaxConcurrentJobs,
	)

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".aquaproc")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dir, "jobs.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	cat, err := process.LoadCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load process catalog: %v\n", err)
		os.Exit(1)
	}

	m := metrics.New()
	exec := process.NewExecutor(svc, runner.New(logger), logger)
	dispatcher := scheduler.NewDispatcher(cat, exec, st, m, logger)
	if _, err := dispatcher.Recover(context.Background()); err != nil {
		logger.Error("settle interrupted jobs", "error", err)
	}

	jan, err := janitor.New(st, svc.JobRetention, svc.CleanupSchedule, logger, janitor.WithActiveCheck(dispatcher.Active))
	if err != nil {
		fmt.Fprintf(os.Stderr, "janitor: %v\n", err)
		os.Exit(1)
	}
	if err := jan.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "janitor: %v\n", err)
		os.Exit(1)
	}
	defer jan.Stop()

	serverOpts := []server.Option{server.WithMetrics(m)}
	if svc.ServeDownloads {
		serverOpts = append(serverOpts, server.WithDownloads(svc.DownloadDir))
		logger.Info("serving job outputs", "dir", svc.DownloadDir)
	}
	srv := server.New(cfg, cat, st, dispatcher, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "processes", len(cat.List()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *grace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	// Give background jobs the rest of the grace period, then kill them.
	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("grace period over, stopping running jobs")
		dispatcher.Stop()
		<-done
	}
	logger.Info("server stopped")
}
