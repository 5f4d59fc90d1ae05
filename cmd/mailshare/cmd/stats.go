package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/robfisher/mailshare/internal/store"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openLocalStore()
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		printStats(os.Stdout, cfg.DatabasePath(), stats)
		return nil
	},
}

func printStats(out io.Writer, path string, stats *store.Stats) {
	fmt.Fprintf(out, "Database: %s\n", path)
	fmt.Fprintf(out, "  Mails:     %d\n", stats.MailCount)
	fmt.Fprintf(out, "  Contacts:  %d\n", stats.ContactCount)
	fmt.Fprintf(out, "  Tags:      %d\n", stats.TagCount)
	fmt.Fprintf(out, "  Taggings:  %d\n", stats.TaggingCount)
	fmt.Fprintf(out, "  Size:      %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
