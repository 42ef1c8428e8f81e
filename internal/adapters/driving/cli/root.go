// Package cli provides the syncengine command line: the server process and
// operator commands for syncs, connections, history and key rotation.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/syncengine/internal/config"
	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// SecretRotator rotates the vault key and reseals stored credentials.
type SecretRotator interface {
	Rotate(ctx context.Context) (keyID string, resealed int, err error)
}

// TokenIssuer signs bearer tokens for the HTTP API.
type TokenIssuer interface {
	Sign(user domain.User) (string, time.Time, error)
}

// Runtime is the wired engine the commands operate on.
type Runtime struct {
	Config      config.Config
	Auth        driving.AuthManager
	Connections driving.ConnectionService
	Sync        driving.SyncManager
	Secrets     SecretRotator
	Tokens      TokenIssuer

	// Serve runs the HTTP API, scheduler and workers until ctx ends.
	Serve func(ctx context.Context) error

	// Close releases stores. Optional.
	Close func() error
}

// Bootstrap wires a Runtime from loaded configuration.
type Bootstrap func(ctx context.Context, cfg config.Config) (*Runtime, error)

var (
	version    = "dev"
	configPath string
	verbose    bool

	bootstrap Bootstrap
	current   *Runtime
)

var rootCmd = &cobra.Command{
	Use:   "syncengine",
	Short: "Integration sync engine",
	Long: `syncengine connects users' third-party accounts over OAuth2 and keeps
their activities, calendar events and tasks in sync through scheduled,
manual and webhook-triggered runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.syncengine/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command until it completes or a signal arrives.
func Execute(b Bootstrap, v string) error {
	bootstrap = b
	if v != "" {
		version = v
	}
	defer closeRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// runtimeFor loads configuration and wires the engine on first use.
func runtimeFor(cmd *cobra.Command) (*Runtime, error) {
	if current != nil {
		return current, nil
	}
	if bootstrap == nil {
		return nil, errors.New("engine not configured")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := logger.Configure(logger.Options{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return nil, err
	}

	rt, err := bootstrap(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	current = rt
	return rt, nil
}

func closeRuntime() {
	if current == nil || current.Close == nil {
		return
	}
	if err := current.Close(); err != nil {
		logger.Warn("close: %v", err)
	}
	logger.Sync()
}
