package search

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/robfisher/mailshare/internal/predicate"
	"github.com/robfisher/mailshare/internal/testutil"
)

type fakeMail struct {
	id      int64
	sender  int64
	to      []int64
	cc      []int64
	tags    []int64
	subject string
	body    string
	date    time.Time
}

// fakeStore evaluates predicates in memory.
type fakeStore struct {
	mails []fakeMail
}

func (f *fakeStore) All() ResultSet { return fakeSet{mails: f.mails} }

type fakeSet struct {
	mails []fakeMail
}

func (s fakeSet) Filter(p predicate.Node) ResultSet {
	var out []fakeMail
	for _, m := range s.mails {
		if eval(p, m) {
			out = append(out, m)
		}
	}
	return fakeSet{mails: out}
}

func (s fakeSet) Since(cutoff time.Time) ResultSet {
	day := cutoff.Format("2006-01-02")
	var out []fakeMail
	for _, m := range s.mails {
		if m.date.UTC().Format("2006-01-02") >= day {
			out = append(out, m)
		}
	}
	return fakeSet{mails: out}
}

func (s fakeSet) IDs(context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(s.mails))
	for _, m := range s.mails {
		ids = append(ids, m.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s fakeSet) Count(context.Context) (int64, error) { return int64(len(s.mails)), nil }

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func eval(n predicate.Node, m fakeMail) bool {
	switch v := n.(type) {
	case predicate.Equals:
		switch v.Field {
		case predicate.FieldID:
			return m.id == v.Value
		case predicate.FieldSender:
			return m.sender == v.Value
		}
	case predicate.Match:
		text := m.subject
		if v.Field == predicate.FieldBody {
			text = m.body
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(v.Text))
	case predicate.Member:
		switch v.Relation {
		case predicate.RelationTags:
			return contains(m.tags, v.ID)
		case predicate.RelationTo:
			return contains(m.to, v.ID)
		case predicate.RelationCc:
			return contains(m.cc, v.ID)
		}
	case predicate.Not:
		return !eval(v.Inner, m)
	case predicate.Or:
		for _, t := range v.Terms {
			if eval(t, m) {
				return true
			}
		}
		return false
	case predicate.And:
		for _, t := range v.Terms {
			if !eval(t, m) {
				return false
			}
		}
		return true
	}
	return false
}

// fakeDirectory resolves ids from maps and counts lookups.
type fakeDirectory struct {
	contacts map[int64]ContactInfo
	tags     map[int64]TagInfo
	lookups  int
}

func (d *fakeDirectory) LookupContact(_ context.Context, id int64) (*ContactInfo, error) {
	d.lookups++
	c, ok := d.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (d *fakeDirectory) LookupTag(_ context.Context, id int64) (*TagInfo, error) {
	d.lookups++
	t, ok := d.tags[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func links(t *testing.T, fragment string) map[string]string {
	t.Helper()
	return testutil.Links(t, fragment)
}

// freezeClock pins the AgeInDays clock for the duration of a test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func pairs(kv ...string) []Pair {
	out := make([]Pair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Pair{Name: kv[i], Value: kv[i+1]})
	}
	return out
}
