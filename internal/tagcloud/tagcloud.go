// Package tagcloud builds the per-team tag clouds shown on the index page and
// keeps them cached on disk.
package tagcloud

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/robfisher/mailshare/internal/fileutil"
	"github.com/robfisher/mailshare/internal/present"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
)

// Counter aggregates tags and senders over mail ids.
type Counter interface {
	TagCounts(ctx context.Context, ids []int64) ([]query.TagCount, error)
	SenderCounts(ctx context.Context, ids []int64, limit int) ([]query.SenderCount, error)
}

// Options configures the windows a cloud covers.
type Options struct {
	Days       int
	LinkDays   int
	TopSenders int
}

func (o Options) withDefaults() Options {
	if o.Days <= 0 {
		o.Days = 7
	}
	if o.LinkDays <= 0 {
		o.LinkDays = 30
	}
	if o.TopSenders <= 0 {
		o.TopSenders = present.DefaultTopSenders
	}
	return o
}

// Builder renders the cloud for one team.
type Builder struct {
	data    search.Datastore
	counter Counter
	opts    Options
}

// NewBuilder returns a Builder executing searches on data and counting
// through counter.
func NewBuilder(data search.Datastore, counter Counter, opts Options) *Builder {
	return &Builder{data: data, counter: counter, opts: opts.withDefaults()}
}

// Build renders the cloud of tags on the team's mail over the last Days
// days, linking to the team search over LinkDays, followed by the team's
// top senders.
func (b *Builder) Build(ctx context.Context, teamID int64) (template.HTML, error) {
	recent := search.ForTeam(teamID, b.opts.Days)
	links := search.ForTeam(teamID, b.opts.LinkDays)

	ids, err := recent.Execute(b.data).IDs(ctx)
	if err != nil {
		return "", fmt.Errorf("team %d mails: %w", teamID, err)
	}
	tags, err := b.counter.TagCounts(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("team %d tags: %w", teamID, err)
	}
	senders, err := b.counter.SenderCounts(ctx, ids, b.opts.TopSenders)
	if err != nil {
		return "", fmt.Errorf("team %d senders: %w", teamID, err)
	}

	html := `<div id="tag_cloud" class="tag_cloud">` + string(present.TagCloud(tags, links)) + `</div>` +
		`<p>Top senders in the last week:</p>` + string(present.TopSenders(senders, links))
	return template.HTML(html), nil
}

// Cache stores built clouds as files named tag_cloud_cache_<team> in dir.
// Files are replaced atomically, so readers see either the old or the new
// cloud. Concurrent refreshes of the same team share one build.
type Cache struct {
	dir     string
	builder *Builder
	logger  *slog.Logger
	group   singleflight.Group

	mu        sync.Mutex
	refreshed map[int64]time.Time
}

// NewCache returns a cache writing into dir.
func NewCache(dir string, builder *Builder, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, builder: builder, logger: logger, refreshed: make(map[int64]time.Time)}
}

// Path returns the cache file for a team.
func (c *Cache) Path(teamID int64) string {
	return filepath.Join(c.dir, "tag_cloud_cache_"+strconv.FormatInt(teamID, 10))
}

// Get returns the cached cloud for a team, building and storing it when no
// cache file exists.
func (c *Cache) Get(ctx context.Context, teamID int64) (template.HTML, error) {
	data, err := os.ReadFile(c.Path(teamID))
	if err == nil {
		return template.HTML(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("read tag cloud cache", "team", teamID, "error", err)
	}
	return c.Refresh(ctx, teamID)
}

// Refresh rebuilds and stores the cloud for a team. A failure to write the
// cache file is logged and the fresh cloud still returned.
func (c *Cache) Refresh(ctx context.Context, teamID int64) (template.HTML, error) {
	v, err, _ := c.group.Do(strconv.FormatInt(teamID, 10), func() (any, error) {
		html, err := c.builder.Build(ctx, teamID)
		if err != nil {
			return nil, err
		}
		if err := c.save(teamID, html); err != nil {
			c.logger.Warn("write tag cloud cache", "team", teamID, "error", err)
		}
		c.mu.Lock()
		c.refreshed[teamID] = time.Now()
		c.mu.Unlock()
		return html, nil
	})
	if err != nil {
		return "", err
	}
	return v.(template.HTML), nil
}

func (c *Cache) save(teamID int64, html template.HTML) error {
	if err := fileutil.SecureMkdirAll(c.dir, 0700); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(c.Path(teamID), []byte(html), 0600)
}

// RefreshedAt returns when a team's cloud was last rebuilt by this cache.
func (c *Cache) RefreshedAt(teamID int64) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.refreshed[teamID]
	return t, ok
}

// RefreshAll rebuilds the cloud of every resolved team and of AllTeams,
// a few at a time.
func (c *Cache) RefreshAll(ctx context.Context, teams []Team) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() error {
		_, err := c.Refresh(ctx, AllTeams)
		return err
	})
	for _, t := range teams {
		if t.ContactID < 0 {
			continue
		}
		id := t.ContactID
		g.Go(func() error {
			_, err := c.Refresh(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// UpdateForContacts refreshes the cloud of each team whose contact is in
// contactIDs, then the AllTeams cloud if any team was refreshed. It returns
// the refreshed team ids in that order.
func (c *Cache) UpdateForContacts(ctx context.Context, teams []Team, contactIDs []int64) ([]int64, error) {
	touched := make(map[int64]bool, len(contactIDs))
	for _, id := range contactIDs {
		touched[id] = true
	}

	var refreshed []int64
	for _, t := range teams {
		if t.ContactID < 0 || !touched[t.ContactID] {
			continue
		}
		c.logger.Debug("updating tag cloud cache", "team", t.Name)
		if _, err := c.Refresh(ctx, t.ContactID); err != nil {
			return refreshed, err
		}
		refreshed = append(refreshed, t.ContactID)
	}
	if len(refreshed) > 0 {
		if _, err := c.Refresh(ctx, AllTeams); err != nil {
			return refreshed, err
		}
		refreshed = append(refreshed, AllTeams)
	}
	return refreshed, nil
}
