package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/fileutil"
	"github.com/robfisher/mailshare/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	homeDir    string
	verbose    bool
	cfg        *config.Config
	logger     *slog.Logger
	logCleanup func() error
)

var rootCmd = &cobra.Command{
	Use:   "mailshare",
	Short: "Shared mailbox search and tagging",
	Long: `mailshare archives the mail of a shared mailbox and lets a team
search and tag it together.

Searches are chains of parameters encoded in URLs such as
/search/?recipient=4&query=budget. The same URLs work on the web pages,
the MCP tools and the search command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, logCleanup, err = logging.Setup(cfg.Log, logging.Options{Verbose: verbose})
		if err != nil {
			return fmt.Errorf("set up logging: %w", err)
		}

		if err := fileutil.SecureMkdirAll(cfg.Data.DataDir, 0700); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCleanup != nil {
			return logCleanup()
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailshare/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides MAILSHARE_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
