// Package storetest provides a Fixture for tests that need a populated
// mail database.
package storetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/robfisher/mailshare/internal/store"
	"github.com/robfisher/mailshare/internal/testutil"
)

// Fixture holds a fresh store and a counter for generated message ids.
type Fixture struct {
	T     *testing.T
	Store *store.Store
	seq   int
}

// New creates a Fixture backed by an empty test database.
func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{T: t, Store: testutil.NewTestStore(t)}
}

// Contact creates or gets a contact and returns its id.
func (f *Fixture) Contact(name, address string) int64 {
	f.T.Helper()
	id, err := f.Store.EnsureContact(name, address)
	testutil.MustNoErr(f.T, err, "EnsureContact "+address)
	return id
}

// Tag creates or gets a tag and returns its id.
func (f *Fixture) Tag(name string) int64 {
	f.T.Helper()
	t, err := f.Store.GetOrCreateTag(name)
	testutil.MustNoErr(f.T, err, "GetOrCreateTag "+name)
	return t.ID
}

// AutoTag creates a tag flagged for automatic application.
func (f *Fixture) AutoTag(name string) int64 {
	f.T.Helper()
	t, err := f.Store.CreateTag(name, true)
	testutil.MustNoErr(f.T, err, "CreateTag "+name)
	return t.ID
}

// MailBuilder accumulates the fields of a mail to insert.
type MailBuilder struct {
	f    *Fixture
	m    store.Mail
	tags []int64
}

// NewMail starts a mail from sender with a unique Message-ID, dated
// 2026-03-01 12:00 UTC.
func (f *Fixture) NewMail(sender int64) *MailBuilder {
	f.seq++
	return &MailBuilder{f: f, m: store.Mail{
		SenderID:    sender,
		Subject:     fmt.Sprintf("mail %d", f.seq),
		Date:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		MessageID:   fmt.Sprintf("<test-%d@example.com>", f.seq),
		ContentType: "text/plain",
	}}
}

func (b *MailBuilder) Subject(s string) *MailBuilder { b.m.Subject = s; return b }
func (b *MailBuilder) Body(s string) *MailBuilder    { b.m.Body = s; return b }
func (b *MailBuilder) Date(t time.Time) *MailBuilder { b.m.Date = t; return b }

func (b *MailBuilder) To(ids ...int64) *MailBuilder   { b.m.To = append(b.m.To, ids...); return b }
func (b *MailBuilder) Cc(ids ...int64) *MailBuilder   { b.m.Cc = append(b.m.Cc, ids...); return b }
func (b *MailBuilder) Tags(ids ...int64) *MailBuilder { b.tags = append(b.tags, ids...); return b }

// Create inserts the mail, attaches its tags and returns the mail id.
func (b *MailBuilder) Create() int64 {
	b.f.T.Helper()
	id, err := b.f.Store.InsertMail(&b.m)
	testutil.MustNoErr(b.f.T, err, "InsertMail")
	for _, tag := range b.tags {
		testutil.MustNoErr(b.f.T, b.f.Store.AddTag(id, tag), "AddTag")
	}
	return id
}

// Seed is the standard fixture used across query, index and api tests.
type Seed struct {
	Alice, Bob, Carol, Team int64
	Budget, Ops, Lunch      int64
	// Mails in insertion order.
	Mails []int64
}

// Day returns 2026-03-<d> at 15:30 UTC.
func Day(d int) time.Time {
	return time.Date(2026, 3, d, 15, 30, 0, 0, time.UTC)
}

// SeedStandard populates the fixture:
//
//	mail 0: alice -> team, cc bob     "Budget review"   tags budget        2026-03-01
//	mail 1: bob   -> alice            "lunch"           tags budget, lunch 2026-03-09
//	mail 2: carol -> team             "release notes"                      2026-03-10
//	mail 3: alice -> bob, cc team     "Re: plans"       tags ops           2026-03-10
//
// The bodies of mails 1 and 3 mention the budget.
func (f *Fixture) SeedStandard() *Seed {
	f.T.Helper()
	s := &Seed{
		Alice:  f.Contact("Alice", "alice@example.com"),
		Bob:    f.Contact("Bob", "bob@example.com"),
		Carol:  f.Contact("Carol", "carol@example.com"),
		Team:   f.Contact("Team", "team@example.com"),
		Budget: f.Tag("budget"),
		Ops:    f.Tag("ops"),
		Lunch:  f.Tag("lunch"),
	}
	s.Mails = []int64{
		f.NewMail(s.Alice).Subject("Budget review").Body("numbers attached").To(s.Team).Cc(s.Bob).
			Tags(s.Budget).Date(Day(1)).Create(),
		f.NewMail(s.Bob).Subject("lunch").Body("budget lunch on friday").To(s.Alice).
			Tags(s.Budget, s.Lunch).Date(Day(9)).Create(),
		f.NewMail(s.Carol).Subject("release notes").Body("ship it").To(s.Team).Date(Day(10)).Create(),
		f.NewMail(s.Alice).Subject("Re: plans").Body("the budget is fine").To(s.Bob).Cc(s.Team).
			Tags(s.Ops).Date(Day(10).Add(time.Hour)).Create(),
	}
	return s
}
