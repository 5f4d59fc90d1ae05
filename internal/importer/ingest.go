// Package importer stores parsed mail: it ensures contacts, inserts the mail
// and applies auto tags.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robfisher/mailshare/internal/mime"
	"github.com/robfisher/mailshare/internal/store"
	"github.com/robfisher/mailshare/internal/textutil"
	"golang.org/x/text/cases"
)

// Errors returned by IngestRaw for messages that are skipped.
var (
	ErrDuplicate   = errors.New("duplicate message")
	ErrUnparseable = errors.New("unparseable message")
)

// Result summarizes an import run.
type Result struct {
	Imported   int
	Duplicates int
	Failed     int
	MailIDs    []int64
	ContactIDs []int64 // unique, ascending
}

func (r *Result) addContacts(ids []int64) {
	seen := make(map[int64]bool, len(r.ContactIDs))
	for _, id := range r.ContactIDs {
		seen[id] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			r.ContactIDs = append(r.ContactIDs, id)
		}
	}
	sort.Slice(r.ContactIDs, func(i, j int) bool { return r.ContactIDs[i] < r.ContactIDs[j] })
}

// Importer writes messages into a store.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
	fold   cases.Caser
}

// New creates an Importer. A nil logger means slog.Default().
func New(st *store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: st, logger: logger, fold: cases.Fold()}
}

// Ingested describes one stored message.
type Ingested struct {
	MailID     int64
	ContactIDs []int64 // sender, To and Cc contacts
	TagIDs     []int64 // auto tags applied
}

// IngestRaw parses raw and stores it. fallbackDate is used when the Date
// header is missing or unparseable; if it is also zero the current time is
// used. Returns ErrDuplicate when the Message-ID is already stored and
// ErrUnparseable when raw is not a readable message.
func (im *Importer) IngestRaw(ctx context.Context, raw []byte, fallbackDate time.Time) (*Ingested, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := mime.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}

	messageID := textutil.EnsureUTF8(parsed.MessageID)
	if existing, err := im.store.MailIDByMessageID(messageID); err != nil {
		return nil, err
	} else if existing != 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, messageID)
	}

	addresses := make([]mime.Address, 0, len(parsed.From)+len(parsed.To)+len(parsed.Cc))
	for _, list := range [][]mime.Address{parsed.From, parsed.To, parsed.Cc} {
		for _, a := range list {
			addresses = append(addresses, mime.Address{Name: textutil.EnsureUTF8(a.Name), Email: textutil.EnsureUTF8(a.Email)})
		}
	}
	contacts, err := im.store.EnsureContactsBatch(addresses)
	if err != nil {
		return nil, fmt.Errorf("ensure contacts: %w", err)
	}

	date := parsed.Date
	if date.IsZero() {
		date = fallbackDate
	}
	if date.IsZero() {
		date = time.Now()
	}

	mail := &store.Mail{
		SenderID:    lookup(contacts, parsed.Sender()),
		Subject:     textutil.EnsureUTF8(parsed.Subject),
		Date:        date,
		MessageID:   messageID,
		ThreadIndex: parsed.ThreadIndex,
		InReplyTo:   textutil.EnsureUTF8(parsed.InReplyTo),
		References:  textutil.EnsureUTF8(parsed.References),
		ContentType: parsed.ContentType,
		Body:        textutil.EnsureUTF8(parsed.Body()),
		To:          lookupAll(contacts, parsed.To),
		Cc:          lookupAll(contacts, parsed.Cc),
	}
	id, err := im.store.InsertMail(mail)
	if err != nil {
		return nil, err
	}

	tagIDs, err := im.applyAutoTags(id, mail.Subject, mail.Body)
	if err != nil {
		return nil, err
	}

	touched := make([]int64, 0, 1+len(mail.To)+len(mail.Cc))
	if mail.SenderID != 0 {
		touched = append(touched, mail.SenderID)
	}
	touched = append(touched, mail.To...)
	touched = append(touched, mail.Cc...)

	im.logger.Debug("imported mail", "id", id, "message_id", messageID, "auto_tags", len(tagIDs))
	return &Ingested{MailID: id, ContactIDs: touched, TagIDs: tagIDs}, nil
}

// applyAutoTags attaches every auto tag whose name occurs in the subject
// or, failing that, the body. Matching ignores case.
func (im *Importer) applyAutoTags(mailID int64, subject, body string) ([]int64, error) {
	tags, err := im.store.AutoTags()
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	subject = im.fold.String(subject)
	body = im.fold.String(body)

	var applied []int64
	for _, t := range tags {
		name := im.fold.String(t.Name)
		if name == "" {
			continue
		}
		if strings.Contains(subject, name) || strings.Contains(body, name) {
			if err := im.store.AddTag(mailID, t.ID); err != nil {
				return nil, fmt.Errorf("auto tag %q: %w", t.Name, err)
			}
			applied = append(applied, t.ID)
		}
	}
	return applied, nil
}

func lookup(contacts map[string]int64, a mime.Address) int64 {
	if a.Email == "" {
		return 0
	}
	return contacts[strings.ToLower(textutil.EnsureUTF8(a.Email))]
}

func lookupAll(contacts map[string]int64, list []mime.Address) []int64 {
	ids := make([]int64, 0, len(list))
	for _, a := range list {
		if id := lookup(contacts, a); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
