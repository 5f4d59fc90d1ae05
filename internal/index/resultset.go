package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/robfisher/mailshare/internal/predicate"
	"github.com/robfisher/mailshare/internal/search"
)

// All implements search.Datastore.
func (idx *Index) All() search.ResultSet {
	return &resultSet{idx: idx}
}

type resultSet struct {
	idx    *Index
	preds  []predicate.Node
	cutoff []time.Time
}

func (rs *resultSet) Filter(p predicate.Node) search.ResultSet {
	next := rs.clone()
	next.preds = append(next.preds, p)
	return next
}

func (rs *resultSet) Since(cutoff time.Time) search.ResultSet {
	next := rs.clone()
	next.cutoff = append(next.cutoff, cutoff)
	return next
}

func (rs *resultSet) clone() *resultSet {
	return &resultSet{
		idx:    rs.idx,
		preds:  append([]predicate.Node(nil), rs.preds...),
		cutoff: append([]time.Time(nil), rs.cutoff...),
	}
}

// evaluate must be called with the read lock held.
func (rs *resultSet) evaluate(p *postings) (*roaring.Bitmap, error) {
	bm := p.all.Clone()
	for _, n := range rs.preds {
		m, err := p.eval(n)
		if err != nil {
			return nil, err
		}
		bm.And(m)
	}
	for _, t := range rs.cutoff {
		bm.And(p.since(dayNumber(t)))
	}
	return bm, nil
}

func (rs *resultSet) IDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs.idx.mu.RLock()
	defer rs.idx.mu.RUnlock()

	p := rs.idx.p
	bm, err := rs.evaluate(p)
	if err != nil {
		return nil, fmt.Errorf("evaluate search: %w", err)
	}
	docs := bm.ToArray()
	sort.Slice(docs, func(i, j int) bool {
		di, dj := p.docs[docs[i]].date, p.docs[docs[j]].date
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return docs[i] > docs[j]
	})
	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = int64(d)
	}
	return ids, nil
}

func (rs *resultSet) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rs.idx.mu.RLock()
	defer rs.idx.mu.RUnlock()

	bm, err := rs.evaluate(rs.idx.p)
	if err != nil {
		return 0, fmt.Errorf("evaluate search: %w", err)
	}
	return int64(bm.GetCardinality()), nil
}

func lookup[K comparable](m map[K]*roaring.Bitmap, key K) *roaring.Bitmap {
	if bm, ok := m[key]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

func (p *postings) since(day int64) *roaring.Bitmap {
	out := roaring.New()
	for d, bm := range p.days {
		if d >= day {
			out.Or(bm)
		}
	}
	return out
}

// eval returns a fresh bitmap the caller may modify.
func (p *postings) eval(n predicate.Node) (*roaring.Bitmap, error) {
	switch n := n.(type) {
	case predicate.Equals:
		switch n.Field {
		case predicate.FieldID:
			out := roaring.New()
			if id, err := docID(n.Value); err == nil && p.all.Contains(id) {
				out.Add(id)
			}
			return out, nil
		case predicate.FieldSender:
			return lookup(p.sender, n.Value), nil
		}
		return nil, fmt.Errorf("unsupported equality field %q", n.Field)

	case predicate.Match:
		var m map[string]*roaring.Bitmap
		switch n.Field {
		case predicate.FieldSubject:
			m = p.subject
		case predicate.FieldBody:
			m = p.body
		default:
			return nil, fmt.Errorf("unsupported text field %q", n.Field)
		}
		out := p.all.Clone()
		for _, tok := range Tokenize(n.Text) {
			bm, ok := m[tok]
			if !ok {
				return roaring.New(), nil
			}
			out.And(bm)
		}
		return out, nil

	case predicate.Member:
		switch n.Relation {
		case predicate.RelationTags:
			return lookup(p.tags, n.ID), nil
		case predicate.RelationTo:
			return lookup(p.to, n.ID), nil
		case predicate.RelationCc:
			return lookup(p.cc, n.ID), nil
		}
		return nil, fmt.Errorf("unsupported relation %q", n.Relation)

	case predicate.Not:
		if n.Inner == nil {
			return nil, fmt.Errorf("NOT without operand")
		}
		inner, err := p.eval(n.Inner)
		if err != nil {
			return nil, err
		}
		out := p.all.Clone()
		out.AndNot(inner)
		return out, nil

	case predicate.Or:
		out := roaring.New()
		for _, t := range n.Terms {
			bm, err := p.eval(t)
			if err != nil {
				return nil, err
			}
			out.Or(bm)
		}
		return out, nil

	case predicate.And:
		out := p.all.Clone()
		for _, t := range n.Terms {
			bm, err := p.eval(t)
			if err != nil {
				return nil, err
			}
			out.And(bm)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported predicate %T", n)
}

var _ search.Datastore = (*Index)(nil)
