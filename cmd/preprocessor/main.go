package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/john/chatsift/internal/archive"
	"github.com/john/chatsift/internal/bus"
	"github.com/john/chatsift/internal/config"
	"github.com/john/chatsift/internal/health"
	"github.com/john/chatsift/internal/observability"
	"github.com/john/chatsift/internal/preprocess"
	"github.com/john/chatsift/internal/sink"
	"github.com/john/chatsift/internal/uploader"
)

func main() {
	channel := flag.String("channel", "", "Channel name (required)")
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

	var wg sync.WaitGroup
	sinks := buildSinks(ctx, cfg, b, &wg, logger)

	logger.Info().Str("channel", *channel).Msg("preprocessor starting")

	runErr := preprocess.NewPipeline(*channel, sinks, logger).Run(ctx, b)

	// Let the archive flush and the uploader drain before reporting.
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("pipeline failed")
	}
	logger.Info().Msg("preprocessor stopped")
}

// buildSinks assembles the configured sink chain: stdout always, bus
// forwarding and the archive (with optional S3 shipping) when enabled.
func buildSinks(ctx context.Context, cfg *config.Config, b *bus.Bus, wg *sync.WaitGroup, logger zerolog.Logger) sink.Multi {
	sinks := sink.Multi{sink.NewStdout(nil)}

	if cfg.Forward.Enabled {
		sinks = append(sinks, sink.NewForward(b))
	}

	if !cfg.Archive.Enabled {
		return sinks
	}

	arc := archive.New(
		cfg.Archive.OutputDir,
		cfg.Archive.BufferSize,
		cfg.Archive.RotateMinutes,
		cfg.Archive.RotateMegabytes,
		logger,
	)
	sinks = append(sinks, arc)

	fileChan := make(chan string, 100)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := arc.Run(ctx, fileChan); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("archive error")
		}
	}()

	if cfg.S3.Bucket == "" {
		return sinks
	}

	var (
		up  *uploader.Uploader
		err error
	)
	if cfg.S3.RoleARN != "" {
		up, err = uploader.New(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.RoleARN,
			cfg.Archive.DeleteAfterShip, cfg.Archive.ShipMaxRetries, logger)
	} else {
		up, err = uploader.NewWithStaticCredentials(ctx, cfg.S3.Bucket, cfg.S3.Region,
			cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey,
			cfg.Archive.DeleteAfterShip, cfg.Archive.ShipMaxRetries, logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create uploader")
	}

	if err := up.ScanAndUploadExisting(ctx, cfg.Archive.OutputDir); err != nil {
		logger.Warn().Err(err).Msg("leftover scan failed")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := up.Start(ctx, fileChan); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("uploader error")
		}
	}()

	return sinks
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}
