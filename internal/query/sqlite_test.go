package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/robfisher/mailshare/internal/predicate"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/testutil"
	"github.com/robfisher/mailshare/internal/testutil/storetest"
)

type engineEnv struct {
	*storetest.Fixture
	Seed   *storetest.Seed
	Engine *SQLiteEngine
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	f := storetest.New(t)
	seed := f.SeedStandard()
	return &engineEnv{Fixture: f, Seed: seed, Engine: NewSQLiteEngine(f.Store.DB())}
}

// withoutFTS forces the LIKE fallback.
func (env *engineEnv) withoutFTS() {
	env.Engine.ftsMu.Lock()
	env.Engine.ftsChecked = true
	env.Engine.ftsResult = false
	env.Engine.ftsMu.Unlock()
}

func (env *engineEnv) ids(t *testing.T, s *search.Search) []int64 {
	t.Helper()
	ids, err := s.Execute(env.Engine).IDs(context.Background())
	testutil.MustNoErr(t, err, "IDs")
	return ids
}

func TestSearchExecution(t *testing.T) {
	for _, mode := range []string{"fts", "like"} {
		t.Run(mode, func(t *testing.T) {
			env := newEngineEnv(t)
			if mode == "like" {
				env.withoutFTS()
			}
			s, m := env.Seed, env.Seed.Mails

			tests := []struct {
				name   string
				search *search.Search
				want   []int64
			}{
				{"empty is all newest first", search.New(nil), []int64{m[3], m[2], m[1], m[0]}},
				{"full text subject or body", search.ForFullText("budget"), []int64{m[3], m[1], m[0]}},
				{"full text all words", search.ForFullText("budget lunch"), []int64{m[1]}},
				{"full text case insensitive", search.ForFullText("RELEASE"), []int64{m[2]}},
				{"full text punctuation splits words", search.ForFullText("budget,lunch"), []int64{m[1]}},
				{"full text only punctuation is all", search.ForFullText("?!"), []int64{m[3], m[2], m[1], m[0]}},
				{"tag", search.ForTagID(s.Budget), []int64{m[1], m[0]}},
				{"not tag", search.ForNotTagID(s.Budget), []int64{m[3], m[2]}},
				{"sender", search.ForSenderID(s.Alice), []int64{m[3], m[0]}},
				{"recipient to or cc", search.ForRecipientID(s.Team), []int64{m[3], m[2], m[0]}},
				{"contact any role", search.ForContactID(s.Bob), []int64{m[3], m[1], m[0]}},
				{"mail id", search.ForMailID(m[2]), []int64{m[2]}},
				{"unknown tag", search.ForTagID(9999), nil},
				{"and chain", search.ForSenderID(s.Alice).And(search.ForFullText("budget")).And(search.ForTagID(s.Ops)), []int64{m[3]}},
			}
			for _, tc := range tests {
				t.Run(tc.name, func(t *testing.T) {
					testutil.AssertIDs(t, env.ids(t, tc.search), tc.want...)
				})
			}
		})
	}
}

func TestResultSet_SinceDayGranularity(t *testing.T) {
	env := newEngineEnv(t)
	m := env.Seed.Mails
	ctx := context.Background()

	// Mail 1 was sent at 15:30 on the 9th; a cutoff late on the same day
	// still includes it.
	rs := env.Engine.All().Since(storetest.Day(9).Add(8 * time.Hour))
	ids, err := rs.IDs(ctx)
	testutil.MustNoErr(t, err, "IDs")
	testutil.AssertIDs(t, ids, m[3], m[2], m[1])

	n, err := rs.Count(ctx)
	testutil.MustNoErr(t, err, "Count")
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	ids, err = rs.Filter(predicate.Equals{Field: predicate.FieldSender, Value: env.Seed.Alice}).IDs(ctx)
	testutil.MustNoErr(t, err, "IDs")
	testutil.AssertIDs(t, ids, m[3])
}

func TestResultSet_DerivedSetsIndependent(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()

	base := env.Engine.All().Filter(predicate.Member{Relation: predicate.RelationTags, ID: env.Seed.Budget})
	a := base.Filter(predicate.Equals{Field: predicate.FieldSender, Value: env.Seed.Alice})
	b := base.Filter(predicate.Equals{Field: predicate.FieldSender, Value: env.Seed.Bob})

	ids, err := a.IDs(ctx)
	testutil.MustNoErr(t, err, "a")
	testutil.AssertIDs(t, ids, env.Seed.Mails[0])
	ids, err = b.IDs(ctx)
	testutil.MustNoErr(t, err, "b")
	testutil.AssertIDs(t, ids, env.Seed.Mails[1])
	n, err := base.Count(ctx)
	testutil.MustNoErr(t, err, "base")
	if n != 2 {
		t.Errorf("base Count = %d, want 2", n)
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name     string
		node     predicate.Node
		fts      bool
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "equals",
			node:     predicate.Equals{Field: predicate.FieldSender, Value: 5},
			wantSQL:  "m.sender_id = ?",
			wantArgs: []interface{}{int64(5)},
		},
		{
			name:     "fts match splits on punctuation",
			node:     predicate.Match{Field: predicate.FieldSubject, Text: `say "hi"-there`},
			fts:      true,
			wantSQL:  "m.id IN (SELECT rowid FROM mails_fts WHERE mails_fts MATCH ?)",
			wantArgs: []interface{}{`subject : "say" AND subject : "hi" AND subject : "there"`},
		},
		{
			name:     "like match drops wildcards",
			node:     predicate.Match{Field: predicate.FieldBody, Text: "50% off_peak"},
			wantSQL:  "m.body LIKE ? AND m.body LIKE ? AND m.body LIKE ?",
			wantArgs: []interface{}{"%50%", "%off%", "%peak%"},
		},
		{
			name:    "punctuation match is true",
			node:    predicate.Match{Field: predicate.FieldSubject, Text: "?! --"},
			fts:     true,
			wantSQL: "1=1",
		},
		{
			name:    "empty match is true",
			node:    predicate.Match{Field: predicate.FieldBody, Text: "  "},
			wantSQL: "1=1",
		},
		{
			name:    "empty or is false",
			node:    predicate.Or{},
			wantSQL: "0=1",
		},
		{
			name: "not of or",
			node: predicate.Not{Inner: predicate.Or{Terms: []predicate.Node{
				predicate.Member{Relation: predicate.RelationTo, ID: 1},
				predicate.Member{Relation: predicate.RelationCc, ID: 1},
			}}},
			wantSQL: "NOT ((EXISTS (SELECT 1 FROM mail_to r WHERE r.mail_id = m.id AND r.contact_id = ?)) OR " +
				"(EXISTS (SELECT 1 FROM mail_cc r WHERE r.mail_id = m.id AND r.contact_id = ?)))",
			wantArgs: []interface{}{int64(1), int64(1)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &compiler{fts: tc.fts}
			got, err := c.compile(tc.node)
			testutil.MustNoErr(t, err, "compile")
			if got != tc.wantSQL {
				t.Errorf("sql:\n got %s\nwant %s", got, tc.wantSQL)
			}
			if diff := cmp.Diff(tc.wantArgs, c.args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_UnsupportedField(t *testing.T) {
	c := &compiler{}
	if _, err := c.compile(predicate.Match{Field: predicate.FieldSender, Text: "x"}); err == nil {
		t.Error("expected error for text match on sender")
	}
	if _, err := c.compile(predicate.Equals{Field: predicate.FieldBody, Value: 1}); err == nil {
		t.Error("expected error for equality on body")
	}
}

func TestDirectory(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()

	c, err := env.Engine.LookupContact(ctx, env.Seed.Alice)
	testutil.MustNoErr(t, err, "LookupContact")
	if diff := cmp.Diff(&search.ContactInfo{ID: env.Seed.Alice, Name: "Alice", Address: "alice@example.com"}, c); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}

	tag, err := env.Engine.LookupTag(ctx, env.Seed.Ops)
	testutil.MustNoErr(t, err, "LookupTag")
	if tag == nil || tag.Name != "ops" {
		t.Errorf("LookupTag = %+v, want ops", tag)
	}

	if c, err := env.Engine.LookupContact(ctx, 9999); err != nil || c != nil {
		t.Errorf("missing contact = %v, %v; want nil, nil", c, err)
	}
	if tag, err := env.Engine.LookupTag(ctx, 9999); err != nil || tag != nil {
		t.Errorf("missing tag = %v, %v; want nil, nil", tag, err)
	}
}

func TestSummaries(t *testing.T) {
	env := newEngineEnv(t)
	m := env.Seed.Mails

	got, err := env.Engine.Summaries(context.Background(), []int64{m[1], 9999, m[0]})
	testutil.MustNoErr(t, err, "Summaries")
	if len(got) != 2 {
		t.Fatalf("got %d summaries, want 2", len(got))
	}
	if got[0].ID != m[1] || got[1].ID != m[0] {
		t.Errorf("order = %d, %d; want %d, %d", got[0].ID, got[1].ID, m[1], m[0])
	}
	if got[0].SenderName != "Bob" || got[0].SenderAddress != "bob@example.com" {
		t.Errorf("sender = %q <%s>", got[0].SenderName, got[0].SenderAddress)
	}
	if !got[0].Date.Equal(storetest.Day(9)) {
		t.Errorf("date = %v, want %v", got[0].Date, storetest.Day(9))
	}
	want := []search.TagInfo{{ID: env.Seed.Budget, Name: "budget"}, {ID: env.Seed.Lunch, Name: "lunch"}}
	if diff := cmp.Diff(want, got[0].Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMail(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()

	d, err := env.Engine.GetMail(ctx, env.Seed.Mails[0])
	testutil.MustNoErr(t, err, "GetMail")
	if d == nil {
		t.Fatal("GetMail returned nil")
	}
	if d.Subject != "Budget review" || d.Body != "numbers attached" {
		t.Errorf("subject/body = %q / %q", d.Subject, d.Body)
	}
	if len(d.To) != 1 || d.To[0].ID != env.Seed.Team {
		t.Errorf("To = %+v", d.To)
	}
	if len(d.Cc) != 1 || d.Cc[0].ID != env.Seed.Bob {
		t.Errorf("Cc = %+v", d.Cc)
	}
	if len(d.Tags) != 1 || d.Tags[0].Name != "budget" {
		t.Errorf("Tags = %+v", d.Tags)
	}

	missing, err := env.Engine.GetMail(ctx, 9999)
	if err != nil || missing != nil {
		t.Errorf("missing mail = %v, %v; want nil, nil", missing, err)
	}
}

func TestTagAndSenderCounts(t *testing.T) {
	env := newEngineEnv(t)
	ctx := context.Background()
	s := env.Seed

	tags, err := env.Engine.TagCounts(ctx, s.Mails)
	testutil.MustNoErr(t, err, "TagCounts")
	wantTags := []TagCount{
		{TagInfo: search.TagInfo{ID: s.Budget, Name: "budget"}, Count: 2},
		{TagInfo: search.TagInfo{ID: s.Lunch, Name: "lunch"}, Count: 1},
		{TagInfo: search.TagInfo{ID: s.Ops, Name: "ops"}, Count: 1},
	}
	if diff := cmp.Diff(wantTags, tags); diff != "" {
		t.Errorf("TagCounts mismatch (-want +got):\n%s", diff)
	}

	senders, err := env.Engine.SenderCounts(ctx, s.Mails, 2)
	testutil.MustNoErr(t, err, "SenderCounts")
	wantSenders := []SenderCount{
		{ContactInfo: search.ContactInfo{ID: s.Alice, Name: "Alice", Address: "alice@example.com"}, Count: 2},
		{ContactInfo: search.ContactInfo{ID: s.Bob, Name: "Bob", Address: "bob@example.com"}, Count: 1},
	}
	if diff := cmp.Diff(wantSenders, senders); diff != "" {
		t.Errorf("SenderCounts mismatch (-want +got):\n%s", diff)
	}

	empty, err := env.Engine.TagCounts(ctx, nil)
	testutil.MustNoErr(t, err, "TagCounts(nil)")
	if len(empty) != 0 {
		t.Errorf("TagCounts(nil) = %v, want empty", empty)
	}
}

func TestCompleteTags(t *testing.T) {
	env := newEngineEnv(t)
	env.Tag("Outage")
	ctx := context.Background()

	tests := []struct {
		text string
		want []string
	}{
		{"o", []string{"ops", "Outage"}},
		{"u", nil},
		{"ut", []string{"Outage"}},
		{"UDG", []string{"budget"}},
		{"", nil},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got, err := env.Engine.CompleteTags(ctx, tc.text, 10)
			testutil.MustNoErr(t, err, "CompleteTags")
			testutil.AssertStrings(t, got, tc.want...)
		})
	}
}
