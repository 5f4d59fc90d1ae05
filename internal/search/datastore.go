package search

import (
	"context"
	"time"

	"github.com/robfisher/mailshare/internal/predicate"
)

// ResultSet is a lazily evaluated set of mails. Filter and Since return
// narrowed sets without touching the datastore; IDs and Count run the query.
type ResultSet interface {
	// Filter narrows the set to mails matching p.
	Filter(p predicate.Node) ResultSet
	// Since narrows the set to mails dated on or after the calendar day of
	// cutoff, compared at day granularity.
	Since(cutoff time.Time) ResultSet
	// IDs returns the ids of the matching mails, newest first, without
	// duplicates.
	IDs(ctx context.Context) ([]int64, error)
	// Count returns the number of distinct matching mails.
	Count(ctx context.Context) (int64, error)
}

// Datastore is the mail store a Search executes against.
type Datastore interface {
	// All returns the set of every mail.
	All() ResultSet
}

// ContactInfo is the directory view of a contact used when rendering.
type ContactInfo struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// TagInfo is the directory view of a tag used when rendering.
type TagInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory resolves contact and tag ids to display data. Lookups return
// nil, nil when the id does not exist.
type Directory interface {
	LookupContact(ctx context.Context, id int64) (*ContactInfo, error)
	LookupTag(ctx context.Context, id int64) (*TagInfo, error)
}
