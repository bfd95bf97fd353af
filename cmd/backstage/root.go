// ABOUTME: Root Cobra command and global flags for backstage CLI.
// ABOUTME: Sets up lifecycle hooks for config, logging, session storage, and the API client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/2389-research/backstage/internal/api"
	"github.com/2389-research/backstage/internal/apierr"
	"github.com/2389-research/backstage/internal/cache"
	"github.com/2389-research/backstage/internal/config"
	"github.com/2389-research/backstage/internal/logging"
	"github.com/2389-research/backstage/internal/session"
	"github.com/2389-research/backstage/internal/storage"
)

var globalConfig *config.Config
var globalLogger *slog.Logger
var globalKV storage.KeyValue
var globalSession *session.Manager
var globalClient *api.Client

// Flags
var (
	flagOrigin   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "backstage",
	Short: "Client for the backstage social backend",
	Long: `
██████╗  █████╗  ██████╗██╗  ██╗███████╗████████╗ █████╗  ██████╗ ███████╗
██╔══██╗██╔══██╗██╔════╝██║ ██╔╝██╔════╝╚══██╔══╝██╔══██╗██╔════╝ ██╔════╝
██████╔╝███████║██║     █████╔╝ ███████╗   ██║   ███████║██║  ███╗█████╗
██╔══██╗██╔══██║██║     ██╔═██╗ ╚════██║   ██║   ██╔══██║██║   ██║██╔══╝
██████╔╝██║  ██║╚██████╗██║  ██╗███████║   ██║   ██║  ██║╚██████╔╝███████╗
╚═════╝ ╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═╝ ╚═════╝ ╚══════╝

Sign in, browse profiles, and post to the feed from the terminal.
Sessions persist between runs; reads are cached and deduplicated.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if flagOrigin != "" {
			cfg.Backend.Origin = flagOrigin
		}
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		globalConfig = cfg

		globalLogger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(globalLogger)

		if err := openSession(cmd.Context(), cfg); err != nil {
			return err
		}

		// setup builds its own client for whichever origin the user enters.
		if cmd.Name() == "setup" {
			return nil
		}

		client, err := api.New(cfg.Backend.Origin, globalSession, clientOptions(cfg, globalLogger)...)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		globalClient = client
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagOrigin, "origin", "", "Backend origin (overrides config and "+config.EnvOrigin+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, or error")
}

// execute runs the root command and releases the session store whether or
// not the command succeeded. Cobra skips post-run hooks after a failed RunE.
func execute() error {
	defer closeStore()
	return rootCmd.Execute()
}

func closeStore() {
	if globalKV == nil {
		return
	}
	if err := globalKV.Close(); err != nil && globalLogger != nil {
		globalLogger.Warn("failed to close session store", "error", err)
	}
	globalKV = nil
}

func openSession(ctx context.Context, cfg *config.Config) error {
	path, err := cfg.GetStoragePath()
	if err != nil {
		return fmt.Errorf("failed to resolve storage path: %w", err)
	}
	kv, err := storage.Open(cfg.Storage.Driver, path)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	globalKV = kv

	sess, err := session.Open(ctx, kv,
		session.WithLogger(globalLogger),
		session.WithPersistErrorHandler(func(err error) {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", apierr.Message(err))
		}),
	)
	if err != nil {
		_ = kv.Close()
		globalKV = nil
		return fmt.Errorf("failed to load session: %w", err)
	}
	globalSession = sess
	return nil
}

// clientOptions maps config onto API client options. Each call gets a fresh cache.
func clientOptions(cfg *config.Config, logger *slog.Logger) []api.Option {
	qc := cache.New(
		cache.WithGCGrace(cfg.Cache.GCGrace),
		cache.WithLogger(logger),
	)
	return []api.Option{
		api.WithTimeout(cfg.Backend.Timeout),
		api.WithRateLimit(cfg.Backend.RateLimit.RPS, cfg.Backend.RateLimit.Burst),
		api.WithCache(qc),
		api.WithPlaceholder(cfg.Media.Placeholder),
		api.WithMaxUploadBytes(cfg.Media.MaxUploadBytes),
		api.WithLogger(logger),
	}
}

// userError turns a client error into the message a user should see.
// Non-client errors pass through unchanged.
func userError(err error) error {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	globalLogger.Debug("request failed", "kind", apiErr.Kind.String(), "error", err)
	return errors.New(apierr.Message(err))
}
