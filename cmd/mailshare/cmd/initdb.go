package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the mailshare database with the required schema.

This command creates the contact, mail, recipient and tag tables, plus the
full-text index when SQLite was built with FTS5. It is safe to run multiple
times - tables are only created if they don't already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("initializing database", "path", cfg.DatabasePath())

		s, err := openLocalStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully", "fts5", s.FTS5Available())

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		printStats(os.Stdout, cfg.DatabasePath(), stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
