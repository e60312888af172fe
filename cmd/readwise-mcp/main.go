// Package main provides the readwise-mcp HTTP server entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/config"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/mcp"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/readwise"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/server"
	"github.com/CaseyRo/readwise-mcp-http-server/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Optional TOML settings file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug || cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	client := readwise.NewClient(readwise.Config{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.RequestTimeout,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
	})

	mcpServer := mcp.NewServer(client, Version, cfg.StreamDelay)
	svc := server.NewService(cfg, mcp.NewHandler(mcpServer), Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startWatcher(*configPath)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Start()
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
		case <-ctx.Done():
			return ctx.Err()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return svc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Server error")
	}
}

// startWatcher watches the settings file and exits on change so a supervisor
// restarts the process with fresh configuration.
func startWatcher(configPath string) {
	if configPath == "" {
		return
	}

	w, err := watcher.New(configPath, func() {
		log.Warn().Str("path", configPath).Msg("Settings file changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	log.Info().Str("path", configPath).Msg("Settings file watcher started")
}
