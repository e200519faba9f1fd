package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/config"
	"github.com/john/chatsift/internal/health"
	"github.com/john/chatsift/internal/kick"
	"github.com/john/chatsift/internal/observability"
)

func main() {
	channel := flag.String("channel", "", "Kick channel name (required)")
	configPath := flag.String("config", defaultConfigPath(), "Path to config file")
	flag.Parse()

	if *channel == "" {
		fmt.Fprintf(os.Stderr, "usage: %s --channel <name>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bus.New(cfg.Bus.Addr, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to bus")
	}
	defer b.Close()

	healthServer := health.New(cfg.Health.Addr, logger)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error().Err(err).Msg("health server error")
		}
	}()

	logger.Info().Str("channel", *channel).Str("resolver", cfg.Kick.Resolver).Msg("kick-agent starting")

	runErr := kick.New(*channel, newResolver(cfg), logger).Start(ctx, b)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		var resErr *kick.ResolutionError
		if errors.As(runErr, &resErr) {
			logger.Fatal().Err(runErr).Msg("chatroom resolution failed, not connecting")
		}
		logger.Fatal().Err(runErr).Msg("listener failed")
	}
	logger.Info().Msg("kick-agent stopped")
}

// newResolver picks the room resolver: a pre-configured id wins, otherwise
// the configured strategy.
func newResolver(cfg *config.Config) kick.RoomResolver {
	switch {
	case cfg.Kick.ChatroomID > 0:
		return kick.StaticResolver{ChatroomID: cfg.Kick.ChatroomID}
	case cfg.Kick.Resolver == config.ResolverBrowser:
		return kick.NewBrowserResolver()
	default:
		return kick.NewAPIResolver()
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}
