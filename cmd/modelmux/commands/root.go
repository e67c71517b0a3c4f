// Package commands implements the modelmux CLI's subcommands.
package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	logJSON bool
	daemon  string

	// Shared state
	log *logrus.Entry
)

// rootCmd is the root command for modelmux.
var rootCmd = &cobra.Command{
	Use:   "modelmux",
	Short: "Client for the modelmux admission daemon",
	Long: `modelmux is the operator CLI for modelmuxd, the admission and eviction
scheduler that multiplexes several inference backends behind a single host's
resource budget.

Example:
  modelmux ps
  modelmux evict mistral`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		logger := logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}

		if level := os.Getenv("MODELMUX_LOG_LEVEL"); level != "" {
			if lvl, err := logrus.ParseLevel(level); err == nil {
				logger.SetLevel(lvl)
			}
		}

		log = logger.WithField("component", "modelmux")
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&daemon, "daemon", "http://localhost:8080", "Base URL of the modelmuxd admission API")

	rootCmd.AddCommand(
		newPSCmd(),
		newEvictCmd(),
		newVersionCmd(),
	)
}

// httpClient is shared by every subcommand that talks to modelmuxd; a short
// timeout keeps a down daemon from hanging the CLI indefinitely.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// daemonURL joins the configured daemon base with path.
func daemonURL(path string) string {
	return fmt.Sprintf("%s%s", daemon, path)
}
