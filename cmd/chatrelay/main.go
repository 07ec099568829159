// Command chatrelay runs the chat relay HTTP server: a context-caching
// conversation service in front of the Gemini API with optional uncached
// OpenAI and Anthropic backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/chatrelay/chat"
	"github.com/hupe1980/chatrelay/config"
	"github.com/hupe1980/chatrelay/conversation"
	"github.com/hupe1980/chatrelay/logging"
	"github.com/hupe1980/chatrelay/provider"
	"github.com/hupe1980/chatrelay/provider/anthropic"
	"github.com/hupe1980/chatrelay/provider/gemini"
	"github.com/hupe1980/chatrelay/provider/openai"
	"github.com/hupe1980/chatrelay/server"
	"github.com/hupe1980/chatrelay/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logLevel(cfg.LogLevel),
		Format: "json",
		Output: os.Stdout,
	})

	ctx := context.Background()

	cacher, err := gemini.New(ctx, func(o *gemini.Options) {
		o.APIKey = cfg.ProviderAPIKey("gemini")
		o.Logger = logger.WithComponent("gemini")
	})
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	var completers []provider.Completer
	if key := cfg.ProviderAPIKey("openai"); key != "" {
		completers = append(completers, openai.New())
	}
	if key := cfg.ProviderAPIKey("anthropic"); key != "" {
		completers = append(completers, anthropic.New(func(o *anthropic.Options) {
			o.APIKey = key
		}))
	}

	manager := conversation.NewManager(session.NewInMemoryStore(), cacher, func(o *conversation.Options) {
		o.Logger = logger.WithComponent("conversation")
		o.TTL = cfg.SessionTTL
	})

	service := chat.NewService(manager, cacher, func(o *chat.Options) {
		o.Logger = logger.WithComponent("chat")
		o.Completers = completers
	})

	sweeper := conversation.NewSweeper(manager, cfg.SweepInterval, logger.WithComponent("sweeper"))
	sweeper.Start()
	defer sweeper.Stop()

	srv := server.New(cfg.Listen, service, manager, func(o *server.Options) {
		o.Logger = logger.WithComponent("server")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
