// Package mcp serves mailshare searches to MCP clients over stdio. Searches
// are exchanged as the same "/search/?..." URLs the web pages use.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
)

// Tool name constants.
const (
	ToolSearchMail     = "search_mail"
	ToolDescribeSearch = "describe_search"
	ToolRefineSearch   = "refine_search"
	ToolGetMail        = "get_mail"
	ToolListTags       = "list_tags"
)

// Common argument helpers for recurring tool option definitions.

func withURL(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description("Search URL such as '/search/?sender=3&query=budget', or just its query string. Empty means all mail."),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("url", opts...)
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

// NewServer creates an MCP server exposing the search tools. Searches run
// against data; names are resolved through engine. A nil data uses engine.
func NewServer(engine query.Engine, data search.Datastore) *server.MCPServer {
	if data == nil {
		data = engine
	}
	s := server.NewMCPServer(
		"mailshare",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{engine: engine, data: data}

	s.AddTool(searchMailTool(), h.searchMail)
	s.AddTool(describeSearchTool(), h.describeSearch)
	s.AddTool(refineSearchTool(), h.refineSearch)
	s.AddTool(getMailTool(), h.getMail)
	s.AddTool(listTagsTool(), h.listTags)
	return s
}

// Serve runs the MCP server over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, engine query.Engine, data search.Datastore) error {
	stdio := server.NewStdioServer(NewServer(engine, data))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchMailTool() mcp.Tool {
	return mcp.NewTool(ToolSearchMail,
		mcp.WithDescription("Run a search and return the matching mails, newest first. Parameters: query (full text), sender, recipient, contact (sender or recipient), tag_id, ntag_id (without tag), mail_id, days (age). Repeat a kind with an index suffix, e.g. query-1."),
		mcp.WithReadOnlyHintAnnotation(true),
		withURL(false),
		withLimit("20"),
	)
}

func describeSearchTool() mcp.Tool {
	return mcp.NewTool(ToolDescribeSearch,
		mcp.WithDescription("Parse a search URL into its canonical form, its parameters and its HTML description."),
		mcp.WithReadOnlyHintAnnotation(true),
		withURL(true),
	)
}

func refineSearchTool() mcp.Tool {
	return mcp.NewTool(ToolRefineSearch,
		mcp.WithDescription("Derive a new search from a search URL: add a parameter, remove the first parameter with a kind and value, or replace the parameter at an index. Returns the new search described as by describe_search."),
		mcp.WithReadOnlyHintAnnotation(true),
		withURL(false),
		mcp.WithString("op",
			mcp.Required(),
			mcp.Description("Edit to apply"),
			mcp.Enum("add", "remove", "replace"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Parameter kind, e.g. query, sender or tag_id"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Parameter value"),
		),
		mcp.WithNumber("index",
			mcp.Description("Index of the parameter to replace (op=replace only)"),
		),
	)
}

func getMailTool() mcp.Tool {
	return mcp.NewTool(ToolGetMail,
		mcp.WithDescription("Get a mail with recipients, tags and body by mail ID."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Mail ID"),
		),
	)
}

func listTagsTool() mcp.Tool {
	return mcp.NewTool(ToolListTags,
		mcp.WithDescription("List every tag with its ID, for use as tag_id or ntag_id values."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
