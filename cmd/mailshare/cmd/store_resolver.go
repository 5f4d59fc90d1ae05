package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/index"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/store"
	"github.com/robfisher/mailshare/internal/tagcloud"
)

// openLocalStore opens the configured database and brings its schema up to
// date.
func openLocalStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// backend is the datastore searches run against. idx is set only for the
// index backend.
type backend struct {
	data search.Datastore
	idx  *index.Index
}

// openBackend selects the search backend by name, building the in-memory
// index when asked for. An empty name uses the configured backend.
func openBackend(ctx context.Context, st *store.Store, engine *query.SQLiteEngine, name string) (*backend, error) {
	if name == "" {
		name = cfg.Search.Backend
	}
	switch name {
	case config.BackendSQLite:
		return &backend{data: engine}, nil
	case config.BackendIndex:
		idx := index.New(st, logger)
		start := time.Now()
		if err := idx.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		logger.Info("search index built", "mails", idx.Len(), "duration", time.Since(start))
		return &backend{data: idx, idx: idx}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q: want %q or %q", name, config.BackendSQLite, config.BackendIndex)
	}
}

// newCloudCache wires the tag cloud file cache over data, counting through
// engine.
func newCloudCache(data search.Datastore, engine *query.SQLiteEngine) *tagcloud.Cache {
	builder := tagcloud.NewBuilder(data, engine, tagcloud.Options{
		Days:       cfg.TagCloud.Days,
		LinkDays:   cfg.TagCloud.LinkDays,
		TopSenders: cfg.TagCloud.TopSenders,
	})
	return tagcloud.NewCache(cfg.TagCloudCacheDir(), builder, logger)
}
