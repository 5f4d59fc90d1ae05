package cmd

import (
	"fmt"
	"html/template"

	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/tagcloud"
	"github.com/spf13/cobra"
)

var (
	tagCloudTeam    int64
	tagCloudRefresh bool
	tagCloudAll     bool
)

var tagCloudCmd = &cobra.Command{
	Use:   "tag-cloud",
	Short: "Print or refresh the cached tag cloud of a team",
	Long: `Print the cached tag cloud HTML of a team, building it if no cache
file exists. Team 0 is the cloud over all mail.

Examples:
  mailshare tag-cloud --team 4
  mailshare tag-cloud --team 4 --refresh
  mailshare tag-cloud --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine := query.NewSQLiteEngine(st.DB())
		clouds := newCloudCache(engine, engine)
		ctx := cmd.Context()

		if tagCloudAll {
			teams, err := tagcloud.ResolveTeams(cfg.Teams, st)
			if err != nil {
				return err
			}
			if err := clouds.RefreshAll(ctx, teams); err != nil {
				return fmt.Errorf("refresh tag clouds: %w", err)
			}
			fmt.Printf("Refreshed %d team clouds in %s\n", len(teams)+1, cfg.TagCloudCacheDir())
			return nil
		}

		var html template.HTML
		if tagCloudRefresh {
			html, err = clouds.Refresh(ctx, tagCloudTeam)
		} else {
			html, err = clouds.Get(ctx, tagCloudTeam)
		}
		if err != nil {
			return fmt.Errorf("tag cloud: %w", err)
		}
		fmt.Println(html)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCloudCmd)
	tagCloudCmd.Flags().Int64Var(&tagCloudTeam, "team", tagcloud.AllTeams, "Team contact id (0 for all teams)")
	tagCloudCmd.Flags().BoolVar(&tagCloudRefresh, "refresh", false, "Rebuild the cloud instead of reading the cache")
	tagCloudCmd.Flags().BoolVar(&tagCloudAll, "all", false, "Rebuild the clouds of every configured team")
}
