// Command sz-cloud serves the StreamZone document API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/streamzone/sz/internal/api"
	"github.com/streamzone/sz/internal/logging"
	"github.com/streamzone/sz/internal/serverdb"
)

func main() {
	// Route to admin subcommands if present
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fs := flag.NewFlagSet("sz-cloud", flag.ExitOnError)
	configFile := fs.String("config", "", "config file (default: $SZ_CLOUD_CONFIG)")
	fs.Parse(os.Args[1:])

	cfg, err := api.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	closer := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer closer.Close()

	if err := serve(cfg); err != nil {
		slog.Error("sz-cloud", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func serve(cfg api.Config) error {
	store, err := serverdb.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open server db: %w", err)
	}
	defer store.Close()

	srv, err := api.NewServer(cfg, store)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("server started", "addr", srv.Addr(), "dialect", store.Dialect(), "schema", store.SchemaVersion(), "webhook", cfg.WebhookURL != "")

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	return nil
}
