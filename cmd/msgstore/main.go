package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/syntrixbase/msgstore/internal/config"
	"github.com/syntrixbase/msgstore/internal/logging"
	"github.com/syntrixbase/msgstore/internal/services"
)

// flags holds the command line. Only flags that were set override the
// config files and environment.
type flags struct {
	configDir string
	dataDir   string
	host      string
	port      int
	database  string
	noUpdate  bool
	noConfig  bool

	set *pflag.FlagSet
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("msgstore", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configDir, "config", "c", config.DefaultConfigDir, "directory holding config.yml and config.local.yml")
	fs.StringVar(&f.dataDir, "data-dir", "", "data directory (overrides data_dir)")
	fs.StringVar(&f.host, "host", "", "listen host")
	fs.IntVarP(&f.port, "port", "p", 0, "listen port")
	fs.StringVar(&f.database, "database", "", "record store backend: memory or pebble")
	fs.BoolVar(&f.noUpdate, "no-update", false, "do not write budget changes back to config.yml")
	fs.BoolVar(&f.noConfig, "no-config", false, "ignore config files and never write them")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	f.set = fs
	return f, nil
}

func (f *flags) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigDir: f.configDir,
		DataDir:   f.dataDir,
		SkipFiles: f.noConfig,
		Override:  f.override,
	}
}

func (f *flags) override(cfg *config.Config) {
	if f.set.Changed("host") {
		cfg.Server.Host = f.host
	}
	if f.set.Changed("port") {
		cfg.Server.HTTPPort = f.port
	}
	if f.set.Changed("database") {
		cfg.Storage.Backend = f.database
	}
	if f.noUpdate {
		cfg.Store.NoUpdate = true
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 0. Parse Command Line Flags
	f, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig(f.loadOptions())
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer func() {
		if err := logging.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}()
	slog.Info("Starting msgstore",
		"config_dir", f.configDir,
		"data_dir", cfg.DataDir,
		"backend", cfg.Storage.Backend,
		"file_storage", cfg.Blob.Enabled,
		"events", cfg.Events.Provider,
	)

	// 2. Initialize Service Manager
	mgr := services.NewManager(cfg, services.Options{
		ConfigDir: f.configDir,
		NoConfig:  f.noConfig,
	})
	initCtx, initCancel := context.WithTimeout(context.Background(), time.Minute)
	defer initCancel()
	if err := mgr.Init(initCtx); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	// 3. Start Services
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	if err := mgr.Start(bgCtx); err != nil {
		shutdown(mgr, cfg.Server.ShutdownTimeout)
		return fmt.Errorf("failed to start services: %w", err)
	}

	// 4. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("Shutting down services...", "signal", sig.String())

	bgCancel()
	shutdown(mgr, cfg.Server.ShutdownTimeout)
	slog.Info("All services stopped.")
	return nil
}

func shutdown(mgr *services.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		slog.Error("Shutdown finished with errors", "error", err)
	}
}
