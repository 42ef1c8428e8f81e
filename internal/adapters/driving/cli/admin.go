package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/syncengine/internal/config"
	"github.com/custodia-labs/syncengine/internal/core/domain"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduler and sync workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := runtimeFor(cmd)
		if err != nil {
			return err
		}
		if rt.Serve == nil {
			return errors.New("server not configured")
		}
		return rt.Serve(cmd.Context())
	},
}

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage credential encryption keys",
}

var secretsRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the vault key and reseal stored credentials",
	Long: `Creates a new key in the keyring file, makes it current and re-encrypts
every stored credential under it. Older keys stay in the keyring so that
running servers can still open credentials until they reload.`,
	RunE: runSecretsRotate,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	RunE:  runToken,
}

var (
	configForce bool
	tokenUser   string
	tokenEmail  string
)

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID to issue the token for")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "user email claim")

	secretsCmd.AddCommand(secretsRotateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runSecretsRotate(cmd *cobra.Command, _ []string) error {
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}
	if rt.Secrets == nil {
		return errors.New("secret store not configured")
	}

	keyID, resealed, err := rt.Secrets.Rotate(cmd.Context())
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	cmd.Printf("Current key is now %s; resealed %d credentials.\n", keyID, resealed)
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.Default()
	if err != nil {
		return err
	}
	if err := config.Write(path, cfg, configForce); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	cmd.Println("Set providers.<name>.client_id and client_secret, and auth.jwt_secret, before serving.")
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenUser == "" {
		return errors.New("--user is required")
	}
	rt, err := runtimeFor(cmd)
	if err != nil {
		return err
	}
	if rt.Tokens == nil {
		return errors.New("auth.jwt_secret is not set")
	}

	tok, expires, err := rt.Tokens.Sign(domain.User{ID: tokenUser, Email: tokenEmail})
	if err != nil {
		return err
	}
	cmd.Println(tok)
	cmd.PrintErrf("expires %s\n", expires.Local().Format(time.RFC3339))
	return nil
}
