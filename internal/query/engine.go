package query

import (
	"context"

	"github.com/robfisher/mailshare/internal/search"
)

// Engine provides the read operations behind the web and MCP surfaces.
// It is both the default search.Datastore and the search.Directory used to
// render descriptions. Implementations must be safe for concurrent use.
type Engine interface {
	search.Datastore
	search.Directory

	// Summaries returns result-list rows for ids, in the order given. Ids
	// that no longer exist are skipped.
	Summaries(ctx context.Context, ids []int64) ([]MailSummary, error)

	// GetMail returns a mail with recipients and body, or nil if it does
	// not exist.
	GetMail(ctx context.Context, id int64) (*MailDetail, error)

	// MailTags returns the tags on a mail ordered by name.
	MailTags(ctx context.Context, mailID int64) ([]search.TagInfo, error)

	// TagCounts counts how many of ids carry each tag, ordered by name.
	TagCounts(ctx context.Context, ids []int64) ([]TagCount, error)

	// SenderCounts returns the top limit senders among ids, most mails
	// first.
	SenderCounts(ctx context.Context, ids []int64, limit int) ([]SenderCount, error)

	// CompleteTags returns tag names matching text for autocompletion. A
	// single character matches as a prefix, longer text as a substring.
	CompleteTags(ctx context.Context, text string, limit int) ([]string, error)

	// ListTags returns every tag ordered by name.
	ListTags(ctx context.Context) ([]search.TagInfo, error)

	// Close releases any resources held by the engine.
	Close() error
}
