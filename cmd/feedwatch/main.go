// Command feedwatch watches a social feed or news page and fact-checks its
// posts against a PhilVerify backend.
//
// Usage:
//
//	feedwatch -config feedwatch.yaml        # full YAML configuration
//	feedwatch -url https://x.com/home       # quick start with defaults
//	feedwatch -url <url> -attach            # live Chrome attachment
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/philverify/feedwatch"
)

func main() {
	configPath := flag.String("config", "", "path to feedwatch.yaml config file")
	pageURL := flag.String("url", "", "watch a single URL with default config")
	attach := flag.Bool("attach", false, "attach a live Chrome session (with -url)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *attach); err != nil {
		logger.Error("feedwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL string, attach bool) error {
	var cfg *feedwatch.Config
	switch {
	case configPath != "":
		c, err := feedwatch.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	case pageURL != "":
		cfg = feedwatch.DefaultConfig(pageURL)
		cfg.Browser.Attach = attach
	default:
		fmt.Fprintln(os.Stderr, "usage: feedwatch -config <file> | -url <url> [-attach]")
		os.Exit(1)
	}

	return feedwatch.New(cfg, logger).Run(ctx)
}
