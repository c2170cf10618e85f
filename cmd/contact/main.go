// Command contact submits the portfolio contact form from a terminal. It runs
// the same client-side checks as the site and keeps its submission history in
// a local SQLite file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"portfolio-backend/internal/client"
	"portfolio-backend/pkg/kvstore"
	"portfolio-backend/pkg/logger"
	"portfolio-backend/pkg/ratelimit"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL string
	statePath string
	timeout   time.Duration
	verbose   bool

	// Local submission limit, mirroring the site
	localMax    = 3
	localWindow = time.Hour
)

var rootCmd = &cobra.Command{
	Use:   "contact",
	Short: "Send a message through the portfolio contact form",
	Long: `contact validates a message with the same rules as the website, checks the
local submission limit, and posts it to the backend with a CSRF token.

Example:
  contact send --name "Ada Lovelace" --email ada@example.com \
    --subject "Hello" --message "I enjoyed your portfolio."
  contact send --file message.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger.Init(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("CONTACT_SERVER", "http://localhost:3000"), "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "SQLite file holding the submission history")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(resetLimitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openState opens the history database and builds the local limiter on it.
func openState(ctx context.Context) (*kvstore.SQLite, *ratelimit.Limiter, error) {
	if dir := filepath.Dir(statePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := kvstore.OpenSQLite(ctx, statePath)
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.New(ratelimit.NewKVStore(db), ratelimit.Config{
		Max:    localMax,
		Window: localWindow,
	})
	return db, limiter, nil
}

func newAPIClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout))
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "contact-state.db"
	}
	return filepath.Join(dir, "portfolio-contact", "state.db")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
