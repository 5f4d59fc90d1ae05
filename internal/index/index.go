// Package index keeps an in-memory inverted index of the mail database using
// Roaring bitmaps. An Index is a search.Datastore whose result sets are
// evaluated entirely in memory.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/robfisher/mailshare/internal/store"
)

// doc is what the index remembers about one mail, enough to order results
// and to remove the mail from every posting list.
type doc struct {
	date    time.Time
	day     int64
	sender  int64
	to      []int64
	cc      []int64
	tags    []int64
	subject []string
	body    []string
}

// postings holds the inverted lists of one index generation.
type postings struct {
	all     *roaring.Bitmap
	docs    map[uint32]*doc
	sender  map[int64]*roaring.Bitmap
	to      map[int64]*roaring.Bitmap
	cc      map[int64]*roaring.Bitmap
	tags    map[int64]*roaring.Bitmap
	subject map[string]*roaring.Bitmap
	body    map[string]*roaring.Bitmap
	days    map[int64]*roaring.Bitmap
}

func newPostings() *postings {
	return &postings{
		all:     roaring.New(),
		docs:    make(map[uint32]*doc),
		sender:  make(map[int64]*roaring.Bitmap),
		to:      make(map[int64]*roaring.Bitmap),
		cc:      make(map[int64]*roaring.Bitmap),
		tags:    make(map[int64]*roaring.Bitmap),
		subject: make(map[string]*roaring.Bitmap),
		body:    make(map[string]*roaring.Bitmap),
		days:    make(map[int64]*roaring.Bitmap),
	}
}

// mailSource is the part of the store the index reads.
type mailSource interface {
	ScanMails(ctx context.Context, fn func(*store.MailRecord) error) error
	ScanMailsByID(ctx context.Context, ids []int64, fn func(*store.MailRecord) error) error
}

// Index is safe for concurrent use. Queries take a read lock for the
// duration of evaluation; Rebuild and Sync take the write lock.
type Index struct {
	mu    sync.RWMutex
	p     *postings
	built time.Time

	// While rebuilds > 0 a scan is running. Mails changed meanwhile are
	// kept in pending, nil for a deleted mail, and replayed onto the new
	// generation before it replaces p.
	rebuilds int
	pending  map[int64]*store.MailRecord

	store  mailSource
	logger *slog.Logger
}

// New returns an empty index reading from st.
func New(st *store.Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{p: newPostings(), store: st, logger: logger}
}

// dayNumber is the number of whole UTC days since the Unix epoch.
func dayNumber(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func docID(id int64) (uint32, error) {
	if id < 0 || id > math.MaxUint32 {
		return 0, fmt.Errorf("mail id %d out of index range", id)
	}
	return uint32(id), nil
}

func addTo[K comparable](m map[K]*roaring.Bitmap, key K, id uint32) {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(id)
}

func removeFrom[K comparable](m map[K]*roaring.Bitmap, key K, id uint32) {
	bm, ok := m[key]
	if !ok {
		return
	}
	bm.Remove(id)
	if bm.IsEmpty() {
		delete(m, key)
	}
}

func (p *postings) add(rec *store.MailRecord) error {
	id, err := docID(rec.ID)
	if err != nil {
		return err
	}
	if _, exists := p.docs[id]; exists {
		p.remove(id)
	}
	d := &doc{
		date:    rec.Date,
		day:     dayNumber(rec.Date),
		sender:  rec.SenderID,
		to:      rec.To,
		cc:      rec.Cc,
		tags:    rec.Tags,
		subject: uniqueTokens(rec.Subject),
		body:    uniqueTokens(rec.Body),
	}
	p.docs[id] = d
	p.all.Add(id)
	addTo(p.days, d.day, id)
	if d.sender != 0 {
		addTo(p.sender, d.sender, id)
	}
	for _, c := range d.to {
		addTo(p.to, c, id)
	}
	for _, c := range d.cc {
		addTo(p.cc, c, id)
	}
	for _, t := range d.tags {
		addTo(p.tags, t, id)
	}
	for _, tok := range d.subject {
		addTo(p.subject, tok, id)
	}
	for _, tok := range d.body {
		addTo(p.body, tok, id)
	}
	return nil
}

func (p *postings) remove(id uint32) {
	d, ok := p.docs[id]
	if !ok {
		return
	}
	delete(p.docs, id)
	p.all.Remove(id)
	removeFrom(p.days, d.day, id)
	removeFrom(p.sender, d.sender, id)
	for _, c := range d.to {
		removeFrom(p.to, c, id)
	}
	for _, c := range d.cc {
		removeFrom(p.cc, c, id)
	}
	for _, t := range d.tags {
		removeFrom(p.tags, t, id)
	}
	for _, tok := range d.subject {
		removeFrom(p.subject, tok, id)
	}
	for _, tok := range d.body {
		removeFrom(p.body, tok, id)
	}
}

// Add indexes rec, replacing any earlier version of the same mail.
func (idx *Index) Add(rec *store.MailRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.p.add(rec); err != nil {
		return err
	}
	idx.remember(rec.ID, rec)
	return nil
}

// remember records a change for the running rebuild. Callers hold mu.
func (idx *Index) remember(id int64, rec *store.MailRecord) {
	if idx.pending != nil {
		idx.pending[id] = rec
	}
}

// Rebuild replaces the index with a full scan of the store. Queries keep
// using the previous generation until the scan completes. Mails added or
// synced during the scan are carried over to the new generation.
func (idx *Index) Rebuild(ctx context.Context) error {
	start := time.Now()
	idx.mu.Lock()
	idx.rebuilds++
	if idx.pending == nil {
		idx.pending = make(map[int64]*store.MailRecord)
	}
	idx.mu.Unlock()

	p := newPostings()
	err := idx.store.ScanMails(ctx, p.add)

	idx.mu.Lock()
	idx.rebuilds--
	replayed := 0
	if err == nil {
		for id, rec := range idx.pending {
			replayed++
			if rec != nil {
				_ = p.add(rec)
			} else if did, derr := docID(id); derr == nil {
				p.remove(did)
			}
		}
		idx.p = p
		idx.built = time.Now()
	}
	if idx.rebuilds == 0 {
		idx.pending = nil
	}
	idx.mu.Unlock()

	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	idx.logger.Info("mail index rebuilt",
		"mails", len(p.docs),
		"replayed", replayed,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Sync re-reads the listed mails from the store. Mails that no longer exist
// are dropped from the index.
func (idx *Index) Sync(ctx context.Context, ids ...int64) error {
	found := make(map[int64]*store.MailRecord, len(ids))
	err := idx.store.ScanMailsByID(ctx, ids, func(rec *store.MailRecord) error {
		r := *rec
		found[r.ID] = &r
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync index: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			if err := idx.p.add(rec); err != nil {
				return err
			}
			idx.remember(id, rec)
			continue
		}
		if did, err := docID(id); err == nil {
			idx.p.remove(did)
		}
		idx.remember(id, nil)
	}
	return nil
}

// Len returns the number of indexed mails.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.p.docs)
}

// BuiltAt returns the time of the last successful Rebuild.
func (idx *Index) BuiltAt() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.built
}
