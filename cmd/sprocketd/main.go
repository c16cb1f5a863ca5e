// Command sprocketd is the sprocket server daemon. It opens the task store,
// loads the contract registry, and serves the workflow engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sprocketd/sprocket/config"
	"github.com/sprocketd/sprocket/contract"
	"github.com/sprocketd/sprocket/engine"
	"github.com/sprocketd/sprocket/events"
	"github.com/sprocketd/sprocket/internal/version"
	"github.com/sprocketd/sprocket/server"
	"github.com/sprocketd/sprocket/task"
	"github.com/sprocketd/sprocket/worker"
)

var configPath = flag.String("config", "sprocket.yaml", "path to config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting sprocketd",
		"version", version.Version,
		"commit", version.Commit,
	)

	registry := contract.Default()
	if cfg.Contracts != "" {
		registry, err = contract.Load(cfg.Contracts)
		if err != nil {
			log.Fatalf("Failed to load contracts: %v", err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir %s: %v", cfg.DataDir, err)
	}
	store, err := task.NewSQLiteStore(filepath.Join(cfg.DataDir, "sprocket.db"))
	if err != nil {
		log.Fatalf("Failed to open task store: %v", err)
	}
	defer store.Close()

	oplog, err := task.OpenOpLog(filepath.Join(cfg.DataDir, "oplog.jsonl"))
	if err != nil {
		log.Fatalf("Failed to open oplog: %v", err)
	}
	defer oplog.Close()
	store.SetOpLog(oplog)

	var w worker.Worker
	if cfg.Worker.Command != "" {
		w = worker.NewCommandWorker(cfg.Worker.Command, cfg.Worker.Args, cfg.Worker.Timeout, logger)
	} else {
		logger.Warn("no worker command configured; tasks must be completed manually")
	}

	eng := engine.New(engine.Options{
		Store:    store,
		Registry: registry,
		Worker:   w,
		Bus:      events.NewInMemoryBus(),
		Logger:   logger,
		BaseDir:  cfg.UnitsDir,
	})

	srv := server.New(*cfg, version.Version, logger)
	srv.SetEngine(eng)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("sprocket server running on %s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Printf("received %s, shutting down...\n", sig)
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
