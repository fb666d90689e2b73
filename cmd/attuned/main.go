// Attune daemon - observes activity metadata and generates suggestions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/attune-hq/attune/internal/api"
	"github.com/attune-hq/attune/internal/config"
	"github.com/attune-hq/attune/internal/engine"
	"github.com/attune-hq/attune/internal/feed/execfeed"
	"github.com/attune-hq/attune/internal/feed/googlefeed"
	"github.com/attune-hq/attune/internal/logging"
	"github.com/attune-hq/attune/internal/observe"
	"github.com/attune-hq/attune/internal/storage"
)

var (
	dataDir    string
	configPath string
	port       int

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "attuned",
		Short: "Attune daemon - local behavioral intelligence",
		Long: `Attune watches your calendar and email metadata, learns who you
talk to and when, and surfaces suggestions when something needs
your attention.

Only metadata is observed. Message bodies never leave their source.
All data stays on this machine.`,
		RunE: runDaemon,
	}

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".attune")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default <data-dir>/config.json)")
	rootCmd.Flags().IntVar(&port, "port", 0, "API server port (overrides config)")

	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(dataDir, "config.json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	logging.Info("Starting Attune daemon v%s", version)
	logging.Info("Data directory: %s", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.Open(storage.Config{Path: cfg.DatabasePath()})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	calendar, email, ident, err := buildFeed(cfg)
	if err != nil {
		return err
	}

	var server *api.Server

	eng := engine.New(engine.Config{
		DB:       db,
		Calendar: calendar,
		Email:    email,
		Identity: ident,
		Engine:   cfg.Engine,
		Enabled: func() bool {
			// Re-read the capability flag from disk so toggling it
			// takes effect without a restart.
			fresh, err := config.Load(resolveConfigPath())
			if err != nil {
				return cfg.Capabilities.ActivityIntelligence
			}
			return fresh.Capabilities.ActivityIntelligence
		},
		Notify: func(source string, count int) {
			if server != nil {
				server.Broadcast("observation."+source, map[string]any{"count": count})
			}
		},
	})

	server = api.New(api.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		Engine: eng,
	})

	if err := eng.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("Shutting down...")
		eng.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Stop(ctx)
	}()

	return server.Start()
}

// buildFeed constructs the observation sources named by the config.
// The "cli" provider shells out to the gog binary; "google" talks to
// the Google APIs directly with a stored OAuth token.
func buildFeed(cfg *config.Config) (observe.CalendarSource, observe.EmailSource, observe.IdentitySource, error) {
	switch cfg.Feed.Provider {
	case "", "cli":
		f := execfeed.New(cfg.Feed)
		return f, f, f, nil
	case "google":
		oauth := googlefeed.NewOAuthClient(cfg.Google)
		if !oauth.IsConfigured() {
			return nil, nil, nil, fmt.Errorf("google feed requires client credentials (set ATTUNE_GOOGLE_CLIENT_ID and ATTUNE_GOOGLE_CLIENT_SECRET)")
		}
		token, err := oauth.LoadToken()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("no stored Google token, run 'attuned auth' first: %w", err)
		}
		f, err := googlefeed.New(context.Background(), cfg.Feed, oauth, token)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to build google feed: %w", err)
		}
		return f, f, f, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}
}

// authCmd runs the Google OAuth flow and stores the resulting token.
func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Calendar and Gmail metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			oauth := googlefeed.NewOAuthClient(cfg.Google)
			if !oauth.IsConfigured() {
				return fmt.Errorf("missing Google client credentials (set ATTUNE_GOOGLE_CLIENT_ID and ATTUNE_GOOGLE_CLIENT_SECRET)")
			}

			fmt.Println("🔐 Opening browser for Google authorization...")
			fmt.Println("   Scopes: calendar.readonly, gmail.readonly")
			fmt.Println()

			token, err := oauth.StartOAuthFlow(cmd.Context())
			if err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			if err := oauth.SaveToken(token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Println("✅ Authorized. Token stored.")
			fmt.Println("   Set feed.provider to \"google\" and restart attuned.")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("attuned %s\n", version)
		},
	}
}
