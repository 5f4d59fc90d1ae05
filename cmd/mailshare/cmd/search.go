package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/robfisher/mailshare/internal/mime"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/textutil"
	"github.com/spf13/cobra"
)

var (
	searchLimit   int
	searchJSON    bool
	searchBackend string
)

var searchCmd = &cobra.Command{
	Use:   "search <url | name=value ...>",
	Short: "Run a search URL against the archive",
	Long: `Run a search given as a search URL or as name=value pairs.

Parameter kinds:
  query        Full-text words in subject or body
  sender       Sender contact id
  recipient    To or Cc contact id
  contact      Sender or recipient contact id
  tag_id       Mails with the tag
  ntag_id      Mails without the tag
  mail_id      A single mail
  days         Mails from the last N days

Repeat a kind with an index suffix, e.g. query-1=word.

Examples:
  mailshare search '/search/?recipient=4&query=budget'
  mailshare search query=budget days=30
  mailshare search tag_id=2 ntag_id=5 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := searchFromArgs(args)

		st, err := openLocalStore()
		if err != nil {
			return err
		}
		defer st.Close()

		engine := query.NewSQLiteEngine(st.DB())
		be, err := openBackend(cmd.Context(), st, engine, searchBackend)
		if err != nil {
			return err
		}

		res, err := runSearch(cmd.Context(), s, be.data, engine, searchLimit)
		if err != nil {
			return err
		}
		if searchJSON {
			return outputSearchJSON(os.Stdout, res)
		}
		return outputSearchTable(os.Stdout, res)
	},
}

// searchResult is a search with its described form and the listed mails.
type searchResult struct {
	URL         string              `json:"url"`
	Description string              `json:"description"`
	Total       int                 `json:"total"`
	Mails       []query.MailSummary `json:"mails"`
}

// searchFromArgs joins the arguments into one query string, so a search
// URL can be extended with further name=value pairs.
func searchFromArgs(args []string) *search.Search {
	return search.FromURL(strings.Join(args, "&"))
}

func runSearch(ctx context.Context, s *search.Search, data search.Datastore, engine query.Engine, limit int) (*searchResult, error) {
	ids, err := s.Execute(data).IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	res := &searchResult{
		URL:         s.URLPath(),
		Description: mime.StripHTML(string(s.DescriptiveHTML(ctx, engine))),
		Total:       len(ids),
		Mails:       []query.MailSummary{},
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	mails, err := engine.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list mails: %w", err)
	}
	res.Mails = append(res.Mails, mails...)
	return res, nil
}

func outputSearchTable(out io.Writer, res *searchResult) error {
	fmt.Fprintln(out, res.URL)
	if res.Description != "" {
		fmt.Fprintln(out, res.Description)
	}
	fmt.Fprintln(out)

	if len(res.Mails) == 0 {
		fmt.Fprintln(out, "No mails found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT\tTAGS")
	fmt.Fprintln(w, "──\t────\t────\t───────\t────")
	for _, m := range res.Mails {
		from := m.SenderName
		if from == "" {
			from = m.SenderAddress
		}
		names := make([]string, len(m.Tags))
		for i, t := range m.Tags {
			names[i] = t.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			m.ID,
			m.Date.Format("2006-01-02"),
			textutil.Truncate(from, 24),
			textutil.Truncate(m.Subject, 50),
			textutil.Truncate(strings.Join(names, ","), 30))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShowing %d of %d mails\n", len(res.Mails), res.Total)
	return nil
}

func outputSearchJSON(out io.Writer, res *searchResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "Maximum mails to list (0 for all)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
	searchCmd.Flags().StringVar(&searchBackend, "backend", "", "Search backend: sqlite or index (default from config)")
}
