package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/CyberPuffer/HelloCamera/config"
	"github.com/CyberPuffer/HelloCamera/internal/metrics"
	flag "github.com/spf13/pflag"

	// registers V4L2/AVFoundation cameras with mediadevices
	_ "github.com/pion/mediadevices/pkg/driver/camera"
)

// Version information
var Version = "dev"

func main() {
	fs := flag.NewFlagSet("hellocamera", flag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	listDevices := fs.Bool("list-devices", false, "List capture devices and exit")
	printConfig := fs.Bool("print-config", false, "Print the effective configuration and exit")
	watch := fs.Bool("watch", false, "Restart the relay when the configuration file changes")
	showVersion := fs.Bool("version", false, "Show version and exit")
	config.Default().WithFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("hellocamera %s\n", Version)
		return
	}

	cfg, err := loadConfig(*configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if *printConfig {
		if err := config.Dump(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel())
	if *debug {
		level.Set(slog.LevelDebug)
	}
	logger := newLogger(cfg, level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *listDevices {
		if err := listSources(ctx, cfg, logger); err != nil {
			logger.Error("hellocamera: list devices failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *watch && *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --watch needs --config")
		os.Exit(2)
	}

	logger.Info("hellocamera: starting",
		"version", Version,
		"backend", cfg.Capture.Backend,
		"kind", cfg.Capture.Kind,
		"output", cfg.Output.Device,
	)

	collector := metrics.NewCollector()
	if cfg.Monitoring.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsServer(), collector, logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("hellocamera: metrics server failed", "error", err)
			}
		}()
	}

	if *watch {
		err = runWatched(ctx, *configPath, fs, cfg, level, *debug, collector, logger)
	} else {
		err = newApp(cfg, collector, logger).run(ctx)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("hellocamera: stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("hellocamera: stopped")
}

func loadConfig(path string, fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSONLogs() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
