// Package main implements the abxy terminal chat client.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/config"
	"github.com/eldtechnologies/abxy/internal/logging"
	"github.com/eldtechnologies/abxy/internal/tui"
)

var (
	// Global flags
	serverURL string
	authMode  string
	verbose   bool

	cfg    *config.ClientConfig
	logger zerolog.Logger
)

// rootCmd starts the interactive chat
var rootCmd = &cobra.Command{
	Use:   "abxy",
	Short: "Abxy Chat - a minimal terminal chat client",
	Long: `Abxy Chat signs you in and shows the shared message feed, refreshed
every couple of seconds.

Run without arguments to start the interactive client.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadClient()
		if serverURL != "" {
			cfg.BaseURL = serverURL
		}
		if authMode != "" {
			cfg.AuthMode = authMode
		}
		if cfg.AuthMode != config.AuthEndpoints && cfg.AuthMode != config.AuthNhost {
			return fmt.Errorf("unknown auth mode %q (want %q or %q)", cfg.AuthMode, config.AuthEndpoints, config.AuthNhost)
		}
		if cfg.AuthMode == config.AuthNhost && cfg.NhostSubdomain == "" {
			return fmt.Errorf("ABXY_NHOST_SUBDOMAIN is required in nhost mode")
		}

		// Subcommands log to stderr; the interactive client logs to a file.
		logger = logging.New(cfg.Env, os.Stderr).Level(logLevel())
		return nil
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Server base URL (or set ABXY_URL)")
	rootCmd.PersistentFlags().StringVar(&authMode, "auth", "", "Auth provider: endpoints or nhost (or set ABXY_AUTH_MODE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	readCmd.Flags().IntVarP(&readLimit, "limit", "n", 20, "Number of most recent messages to print")
	for _, c := range []*cobra.Command{readCmd, postCmd} {
		c.Flags().StringVar(&email, "email", "", "Account email (or set ABXY_EMAIL)")
		c.Flags().StringVar(&password, "password", "", "Account password (or set ABXY_PASSWORD)")
	}

	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func logLevel() zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// newClients builds the authenticator and feed for the configured backend.
func newClients() (client.Authenticator, *client.Feed) {
	hc := client.DefaultHTTPClient()

	var auth client.Authenticator
	if cfg.AuthMode == config.AuthNhost {
		auth = client.NewNhostAuth(cfg.AuthURL(), hc)
	} else {
		auth = client.NewEndpointAuth(cfg.AuthURL(), hc)
	}
	return auth, client.NewFeed(cfg.GraphQLURL(), hc, auth.AccessToken)
}

// runInteractive runs the bubbletea client until the user quits.
func runInteractive(cmd *cobra.Command, args []string) error {
	logFile, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	fileLogger := logging.New("production", logFile).Level(logLevel())

	auth, feed := newClients()
	model := tui.NewModel(auth, feed, tui.Options{
		PollInterval: cfg.PollInterval,
		MessageLimit: cfg.MessageLimit,
		Logger:       fileLogger,
	})
	defer model.Close()

	fileLogger.Info().
		Str("auth_mode", cfg.AuthMode).
		Str("graphql", cfg.GraphQLURL()).
		Dur("poll_interval", cfg.PollInterval).
		Msg("starting abxy client")

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat client failed: %w", err)
	}
	return nil
}
