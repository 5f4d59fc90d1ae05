package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
)

const maxLimit = 1000

type handlers struct {
	engine query.Engine
	data   search.Datastore
}

// Parameter is one link of a search chain.
type Parameter struct {
	Field string `json:"field"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

// Description is a search in canonical form.
type Description struct {
	URL             string        `json:"url"`
	Parameters      []Parameter   `json:"parameters"`
	DescriptionHTML template.HTML `json:"description_html"`
	NextQueryField  string        `json:"next_query_field"`
}

// SearchResult is a search with its matching mails.
type SearchResult struct {
	Description
	Total int                 `json:"total"`
	Mails []query.MailSummary `json:"mails"`
}

func (h *handlers) describe(ctx context.Context, s *search.Search) Description {
	d := Description{
		URL:             s.URLPath(),
		Parameters:      []Parameter{},
		DescriptionHTML: s.DescriptiveHTML(ctx, h.engine),
		NextQueryField:  s.NextFullTextFieldName(),
	}
	for _, p := range s.Parameters() {
		d.Parameters = append(d.Parameters, Parameter{
			Field: p.FieldName(),
			Kind:  string(p.Kind()),
			Value: p.Value(),
			Index: p.Index(),
		})
	}
	return d
}

// getIDArg extracts a required positive integer ID from the arguments map.
func getIDArg(args map[string]any, key string) (int64, error) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	if v != math.Trunc(v) || v < 1 || v > math.MaxInt64 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func (h *handlers) searchMail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	s := search.FromURL(stringArg(args, "url"))
	limit := limitArg(args, "limit", 20)

	ids, err := s.Execute(h.data).IDs(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	res := SearchResult{Description: h.describe(ctx, s), Total: len(ids), Mails: []query.MailSummary{}}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	mails, err := h.engine.Summaries(ctx, ids)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list mails failed: %v", err)), nil
	}
	res.Mails = append(res.Mails, mails...)
	return jsonResult(res)
}

func (h *handlers) describeSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, ok := args["url"].(string)
	if !ok {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	return jsonResult(h.describe(ctx, search.FromURL(raw)))
}

func (h *handlers) refineSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	s := search.FromURL(stringArg(args, "url"))
	kind := search.Kind(stringArg(args, "kind"))
	value := stringArg(args, "value")
	if kind == "" {
		return mcp.NewToolResultError("kind parameter is required"), nil
	}

	var refined *search.Search
	switch op := stringArg(args, "op"); op {
	case "add":
		if _, err := search.Construct(kind, value, 0); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		refined = s.And(search.New([]search.Pair{{Name: string(kind), Value: value}}))
	case "remove":
		refined = s.Without(kind, value)
	case "replace":
		index, ok := args["index"].(float64)
		if !ok || index != math.Trunc(index) {
			return mcp.NewToolResultError("index parameter is required for replace"), nil
		}
		var old search.Parameter
		for _, p := range s.Parameters() {
			if p.Index() == int(index) {
				old = p
			}
		}
		if old == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no parameter at index %d", int(index))), nil
		}
		if _, err := search.Construct(kind, value, old.Index()); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		refined = s.Replace(old, kind, value)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid op: %q", op)), nil
	}
	return jsonResult(h.describe(ctx, refined))
}

func (h *handlers) getMail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := getIDArg(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mail, err := h.engine.GetMail(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get mail failed: %v", err)), nil
	}
	if mail == nil {
		return mcp.NewToolResultError(fmt.Sprintf("mail %d not found", id)), nil
	}
	return jsonResult(mail)
}

func (h *handlers) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := h.engine.ListTags(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list tags failed: %v", err)), nil
	}
	if tags == nil {
		tags = []search.TagInfo{}
	}
	return jsonResult(tags)
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent excessive
// result sets.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
