package importer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/robfisher/mailshare/internal/store"
	"github.com/robfisher/mailshare/internal/testutil"
	"github.com/robfisher/mailshare/internal/testutil/email"
	"github.com/robfisher/mailshare/internal/testutil/storetest"
)

func newImporter(t *testing.T) (*Importer, *storetest.Fixture) {
	t.Helper()
	f := storetest.New(t)
	return New(f.Store, slog.Default()), f
}

func mailTags(t *testing.T, st *store.Store, mailID int64) []int64 {
	t.Helper()
	rows, err := st.DB().Query(`SELECT tag_id FROM mail_tags WHERE mail_id = ? ORDER BY tag_id`, mailID)
	testutil.MustNoErr(t, err, "query mail_tags")
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		testutil.MustNoErr(t, rows.Scan(&id), "scan")
		ids = append(ids, id)
	}
	return ids
}

func storedMail(t *testing.T, st *store.Store, id int64) *store.MailRecord {
	t.Helper()
	var got *store.MailRecord
	err := st.ScanMailsByID(context.Background(), []int64{id}, func(r *store.MailRecord) error {
		got = r
		return nil
	})
	testutil.MustNoErr(t, err, "ScanMailsByID")
	if got == nil {
		t.Fatalf("mail %d not stored", id)
	}
	return got
}

func TestIngestRaw_StoresMail(t *testing.T) {
	im, f := newImporter(t)

	raw := email.NewMessage().
		From("Alice <Alice@Example.com>").
		To("team@example.com, Bob <bob@example.com>").
		Cc("carol@example.com").
		Subject("Budget review").
		Date("Tue, 03 Mar 2026 09:15:00 +0100").
		MessageID("<budget-1@example.com>").
		Body("Numbers attached.").
		Bytes()

	got, err := im.IngestRaw(context.Background(), raw, time.Time{})
	if err != nil {
		t.Fatalf("IngestRaw: %v", err)
	}

	alice, err := f.Store.GetContactByAddress("alice@example.com")
	testutil.MustNoErr(t, err, "GetContactByAddress")
	if alice == nil || alice.Name != "Alice" {
		t.Fatalf("sender contact = %+v, want Alice", alice)
	}
	team, _ := f.Store.GetContactByAddress("team@example.com")
	bob, _ := f.Store.GetContactByAddress("bob@example.com")
	carol, _ := f.Store.GetContactByAddress("carol@example.com")

	rec := storedMail(t, f.Store, got.MailID)
	if rec.SenderID != alice.ID {
		t.Errorf("SenderID = %d, want %d", rec.SenderID, alice.ID)
	}
	if rec.Subject != "Budget review" || strings.TrimSpace(rec.Body) != "Numbers attached." {
		t.Errorf("subject/body = %q / %q", rec.Subject, rec.Body)
	}
	if want := time.Date(2026, 3, 3, 8, 15, 0, 0, time.UTC); !rec.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", rec.Date, want)
	}
	testutil.AssertIDs(t, rec.To, team.ID, bob.ID)
	testutil.AssertIDs(t, rec.Cc, carol.ID)
	testutil.AssertIDs(t, got.ContactIDs, alice.ID, team.ID, bob.ID, carol.ID)
}

func TestIngestRaw_Duplicate(t *testing.T) {
	im, _ := newImporter(t)
	raw := email.NewMessage().MessageID("<dup@example.com>").Bytes()

	if _, err := im.IngestRaw(context.Background(), raw, time.Time{}); err != nil {
		t.Fatalf("first IngestRaw: %v", err)
	}
	if _, err := im.IngestRaw(context.Background(), raw, time.Time{}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second IngestRaw error = %v, want ErrDuplicate", err)
	}
}

func TestIngestRaw_NoMessageIDIsNotDeduplicated(t *testing.T) {
	im, _ := newImporter(t)
	raw := email.NewMessage().Bytes()

	for i := 0; i < 2; i++ {
		if _, err := im.IngestRaw(context.Background(), raw, time.Time{}); err != nil {
			t.Fatalf("IngestRaw #%d: %v", i+1, err)
		}
	}
}

func TestIngestRaw_FallbackDate(t *testing.T) {
	im, f := newImporter(t)
	fallback := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	raw := email.NewMessage().Date("").MessageID("<nodate@example.com>").Bytes()

	got, err := im.IngestRaw(context.Background(), raw, fallback)
	if err != nil {
		t.Fatalf("IngestRaw: %v", err)
	}
	if rec := storedMail(t, f.Store, got.MailID); !rec.Date.Equal(fallback) {
		t.Errorf("Date = %v, want %v", rec.Date, fallback)
	}
}

func TestIngestRaw_AutoTags(t *testing.T) {
	im, f := newImporter(t)
	outage := f.AutoTag("Outage")
	release := f.AutoTag("release")
	f.Tag("budget") // not auto

	tests := []struct {
		name    string
		subject string
		body    string
		want    []int64
	}{
		{"subject match ignores case", "OUTAGE in eu-west", "all fine now", []int64{outage}},
		{"body match", "weekly notes", "the release went out", []int64{release}},
		{"both tags", "Release blocked", "by the outage", []int64{outage, release}},
		{"manual tag never applied", "budget", "budget", nil},
		{"no match", "hello", "world", nil},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := email.NewMessage().
				Subject(tt.subject).
				Body(tt.body).
				MessageID("<auto-" + string(rune('a'+i)) + "@example.com>").
				Bytes()
			got, err := im.IngestRaw(context.Background(), raw, time.Time{})
			if err != nil {
				t.Fatalf("IngestRaw: %v", err)
			}
			testutil.AssertIDs(t, mailTags(t, f.Store, got.MailID), tt.want...)
			testutil.AssertIDs(t, got.TagIDs, tt.want...)
		})
	}
}

func TestIngestRaw_RepairsCharset(t *testing.T) {
	im, f := newImporter(t)
	raw := email.NewMessage().
		Subject("caf\xe9 menu").
		ContentType("text/plain").
		Body("Rand\x92s notes").
		MessageID("<latin@example.com>").
		Bytes()

	got, err := im.IngestRaw(context.Background(), raw, time.Time{})
	if err != nil {
		t.Fatalf("IngestRaw: %v", err)
	}
	rec := storedMail(t, f.Store, got.MailID)
	testutil.AssertValidUTF8(t, rec.Subject)
	testutil.AssertValidUTF8(t, rec.Body)
}

func TestIngestRaw_Cancelled(t *testing.T) {
	im, _ := newImporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := im.IngestRaw(ctx, email.NewMessage().Bytes(), time.Time{}); !errors.Is(err, context.Canceled) {
		t.Errorf("IngestRaw error = %v, want context.Canceled", err)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	testutil.MustNoErr(t, os.MkdirAll(filepath.Dir(path), 0o755), "MkdirAll")
	testutil.MustNoErr(t, os.WriteFile(path, data, 0o644), "WriteFile")
}

func TestImportPaths(t *testing.T) {
	im, f := newImporter(t)
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "b.eml"), email.NewMessage().
		From("bob@example.com").To("team@example.com").MessageID("<b@x>").Bytes())
	writeFile(t, filepath.Join(dir, "nested", "a.EML"), email.NewMessage().
		From("alice@example.com").To("team@example.com").MessageID("<a@x>").Bytes())
	writeFile(t, filepath.Join(dir, "nested", "dup.eml"), email.NewMessage().
		From("alice@example.com").MessageID("<a@x>").Bytes())
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not mail"))
	single := filepath.Join(t.TempDir(), "single.msg")
	writeFile(t, single, email.NewMessage().From("carol@example.com").MessageID("<c@x>").Bytes())

	res, err := im.ImportPaths(context.Background(), []string{dir, single})
	if err != nil {
		t.Fatalf("ImportPaths: %v", err)
	}
	if res.Imported != 3 || res.Duplicates != 1 || res.Failed != 0 {
		t.Errorf("Result = %+v, want 3 imported, 1 duplicate", res)
	}
	if len(res.MailIDs) != 3 {
		t.Errorf("MailIDs = %v, want 3 ids", res.MailIDs)
	}

	var want []int64
	for _, addr := range []string{"alice@example.com", "bob@example.com", "carol@example.com", "team@example.com", "recipient@example.com"} {
		c, err := f.Store.GetContactByAddress(addr)
		testutil.MustNoErr(t, err, "GetContactByAddress")
		if c == nil {
			t.Fatalf("contact %s missing", addr)
		}
		want = append(want, c.ID)
	}
	got := map[int64]bool{}
	for _, id := range res.ContactIDs {
		got[id] = true
	}
	for _, id := range want {
		if !got[id] {
			t.Errorf("ContactIDs %v missing %d", res.ContactIDs, id)
		}
	}
	for i := 1; i < len(res.ContactIDs); i++ {
		if res.ContactIDs[i-1] >= res.ContactIDs[i] {
			t.Errorf("ContactIDs not strictly ascending: %v", res.ContactIDs)
		}
	}
}

func TestImportPaths_MissingPath(t *testing.T) {
	im, _ := newImporter(t)
	if _, err := im.ImportPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("ImportPaths() with missing path = nil, want error")
	}
}

func TestImportPaths_Mbox(t *testing.T) {
	im, f := newImporter(t)
	dir := t.TempDir()

	var mbox strings.Builder
	mbox.WriteString("From alice@example.com Mon Mar 2 09:15:00 2026\n")
	mbox.Write(email.NewMessage().From("alice@example.com").Date("").MessageID("<m1@x>").
		Body("first line\n>From the archive\n").Bytes())
	mbox.WriteString("\nFrom bob@example.com Tue Mar 3 10:00:00 2026\n")
	mbox.Write(email.NewMessage().From("bob@example.com").MessageID("<m1@x>").Bytes())
	mbox.WriteString("\nFrom carol@example.com Wed Mar 4 11:00:00 2026\n")
	mbox.Write(email.NewMessage().From("carol@example.com").MessageID("<m3@x>").Bytes())
	writeFile(t, filepath.Join(dir, "archive.mbox"), []byte(mbox.String()))

	res, err := im.ImportPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("ImportPaths: %v", err)
	}
	if res.Imported != 2 || res.Duplicates != 1 || len(res.MailIDs) != 2 {
		t.Fatalf("Result = %+v, want 2 imported, 1 duplicate", res)
	}

	first := storedMail(t, f.Store, res.MailIDs[0])
	if want := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC); !first.Date.Equal(want) {
		t.Errorf("Date = %v, want separator date %v", first.Date, want)
	}
	if !strings.Contains(first.Body, "From the archive") || strings.Contains(first.Body, ">From") {
		t.Errorf("Body = %q, want unquoted From line", first.Body)
	}
}

func TestImportPaths_Emlx(t *testing.T) {
	im, f := newImporter(t)
	dir := t.TempDir()

	raw := email.NewMessage().From("alice@example.com").Date("").MessageID("<e1@x>").Bytes()
	meta := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>date-sent</key>
	<real>252460800</real>
</dict>
</plist>
`
	writeFile(t, filepath.Join(dir, "INBOX.mbox", "Messages", "1.emlx"),
		[]byte(strconv.Itoa(len(raw))+"\n"+string(raw)+meta))
	writeFile(t, filepath.Join(dir, "INBOX.mbox", "Messages", "2.emlx"), []byte("garbage"))

	res, err := im.ImportPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("ImportPaths: %v", err)
	}
	if res.Imported != 1 || res.Failed != 1 {
		t.Fatalf("Result = %+v, want 1 imported, 1 failed", res)
	}
	rec := storedMail(t, f.Store, res.MailIDs[0])
	if want := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC); !rec.Date.Equal(want) {
		t.Errorf("Date = %v, want plist date %v", rec.Date, want)
	}
}
