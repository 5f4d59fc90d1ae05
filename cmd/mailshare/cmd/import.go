package cmd

import (
	"fmt"

	"github.com/robfisher/mailshare/internal/importer"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/tagcloud"
	"github.com/spf13/cobra"
)

var importNoClouds bool

var importCmd = &cobra.Command{
	Use:   "import <file | dir>...",
	Short: "Import .eml, .emlx and .mbox files into the archive",
	Long: `Import RFC 5322 messages from .eml files, Apple Mail .emlx files and
mbox archives. Directories are walked recursively for files ending in
.eml, .emlx or .mbox.

Messages whose Message-ID is already stored are skipped. Auto tags are
applied to each new mail, and the cached tag clouds of the teams the new
mail was sent to are refreshed.

Examples:
  mailshare import ~/export/2026-03
  mailshare import one.eml two.eml --no-tag-clouds
  mailshare import ~/Library/Mail/V10/Shared.mbox
  mailshare import takeout.mbox`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := importer.New(st, logger).ImportPaths(cmd.Context(), args)
		if res != nil {
			fmt.Printf("Imported %d mails (%d duplicates, %d failed)\n", res.Imported, res.Duplicates, res.Failed)
		}
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		if importNoClouds {
			return nil
		}
		engine := query.NewSQLiteEngine(st.DB())
		hooks := importHooks{
			roster: tagcloud.NewRoster(cfg.Teams, st),
			clouds: newCloudCache(engine, engine),
			logger: logger,
		}
		return hooks.apply(cmd.Context(), res)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importNoClouds, "no-tag-clouds", false, "Skip refreshing cached tag clouds")
}
