package cmd

import (
	mcpserver "github.com/robfisher/mailshare/internal/mcp"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/spf13/cobra"
)

var mcpBackend string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for search over stdio",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

MCP clients can run and refine searches with the search_mail,
describe_search and refine_search tools, read mails with get_mail and
list tags with list_tags. Searches are exchanged as /search/?... URLs.

Add to an MCP client config:
  {
    "mcpServers": {
      "mailshare": {
        "command": "mailshare",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine := query.NewSQLiteEngine(st.DB())
		be, err := openBackend(cmd.Context(), st, engine, mcpBackend)
		if err != nil {
			return err
		}
		return mcpserver.Serve(cmd.Context(), engine, be.data)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpBackend, "backend", "", "Search backend: sqlite or index (default from config)")
}
