package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brattlof/userboard/internal/app"
	"github.com/brattlof/userboard/internal/app/config"
	"github.com/brattlof/userboard/internal/app/logging"
	"github.com/brattlof/userboard/plugins"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// defaultAPIBaseURL is where the users API lives unless config says
	// otherwise. Set with -ldflags "-X main.defaultAPIBaseURL=...".
	defaultAPIBaseURL = "http://localhost:8080"
)

func main() {
	cfg, err := config.Load("", config.WithAPIBaseURL(defaultAPIBaseURL))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{
		Version: version,
		Plugins: plugins.Builtin(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting userboard: %v\n", err)
		os.Exit(1)
	}

	slog.Info("userboard", "version", version, "commit", commit, "built", date)

	if err := a.Run(ctx); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
