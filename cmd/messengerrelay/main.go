package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messengerrelay/internal/config"
	"messengerrelay/internal/constants"
	"messengerrelay/internal/models"
	"messengerrelay/internal/service"
	"messengerrelay/internal/tracing"
	"messengerrelay/pkg/imagesearch"
	"messengerrelay/pkg/messenger"
	"messengerrelay/pkg/personachat"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes user IDs and message text)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Messenger Relay %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting Messenger Relay")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	relay, err := buildRelay(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build relay: %w", err)
	}

	logger.WithFields(logrus.Fields{
		service.LogFieldStrategy: relay.StrategyName(),
		"port":                   cfg.Server.Port,
	}).Info("Webhook relay initialized")

	server := NewServer(cfg, relay, logger, *verbose)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	// Replies already accepted keep running after the listener closes
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.TaskShutdownWaitSec)*time.Second)
	defer waitCancel()
	if err := relay.Wait(waitCtx); err != nil {
		logger.WithError(err).Warn("Shutting down with relay tasks in flight")
	}

	logger.Info("Server shutdown completed")
	return nil
}

// configureLogLevel applies the configured level. The verbose flag always wins.
func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - user IDs and message text will be logged")
		return
	}
	if level == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	logger.SetLevel(parsed)
}

// buildRelay wires the outbound clients for the configured reply strategy
func buildRelay(cfg *models.Config, logger *logrus.Logger) (service.Relay, error) {
	sender := messenger.NewClientWithLogger(
		cfg.Messenger.GraphAPIURL,
		cfg.Messenger.PageAccessToken,
		newHTTPClient(cfg.Messenger.TimeoutSec),
		logger,
	)

	var (
		search imagesearch.Searcher
		chat   personachat.Client
	)
	switch cfg.Reply.Strategy {
	case models.StrategyPersonaChat:
		client, err := personachat.New(cfg.Reply.PersonaChat, newHTTPClient(cfg.Reply.PersonaChat.TimeoutSec), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create persona chat client: %w", err)
		}
		breaker := service.NewBreaker(service.ServicePersonaChat, cfg.Reply.Breaker, logger)
		chat = service.NewGuardedChat(client, breaker)
	default:
		client := imagesearch.NewClient(cfg.Reply.ImageSearch.URL, newHTTPClient(cfg.Reply.ImageSearch.TimeoutSec), logger)
		breaker := service.NewBreaker(service.ServiceImageSearch, cfg.Reply.Breaker, logger)
		search = service.NewGuardedSearcher(client, breaker)
	}

	strategy, err := service.NewStrategy(cfg.Reply, search, chat, logger)
	if err != nil {
		return nil, err
	}

	return service.NewRelay(cfg, sender, strategy, logger), nil
}

func newHTTPClient(timeoutSec int) *http.Client {
	if timeoutSec <= 0 {
		timeoutSec = constants.DefaultExternalTimeoutSec
	}
	return &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
}
