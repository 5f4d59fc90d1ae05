package search

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"

	"github.com/robfisher/mailshare/internal/predicate"
)

// Parameter is one typed filter in a Search chain. Implementations are
// immutable values.
type Parameter interface {
	Kind() Kind
	// Value is the raw, URL-decoded textual value.
	Value() string
	// Index disambiguates parameters within a chain in URL field names.
	Index() int
	// FieldName is the URL field name: the kind, plus "-<index>" when the
	// index is non-zero.
	FieldName() string
	URLFragment() string
	HiddenField() template.HTML
	// Predicate returns the declarative filter for this parameter, or nil
	// when the parameter filters through Fallback instead.
	Predicate() predicate.Node
	// Fallback applies a non-predicate filtering step. It is only called
	// when Predicate returns nil.
	Fallback(rs ResultSet) ResultSet
	// Describe renders a sentence describing the filter with links derived
	// from current, the chain containing this parameter.
	Describe(ctx context.Context, current *Search, dir Directory) template.HTML
}

// Base carries the fields shared by every Parameter. Custom kinds embed it
// and implement Predicate and Describe.
type Base struct {
	kind  Kind
	value string
	index int
}

// NewBase returns a Base for the given kind, raw value and index.
func NewBase(kind Kind, value string, index int) Base {
	return Base{kind: kind, value: value, index: index}
}

func (b Base) Kind() Kind    { return b.kind }
func (b Base) Value() string { return b.value }
func (b Base) Index() int    { return b.index }

func (b Base) FieldName() string {
	if b.index == 0 {
		return string(b.kind)
	}
	return string(b.kind) + "-" + strconv.Itoa(b.index)
}

func (b Base) URLFragment() string {
	return b.FieldName() + "=" + url.QueryEscape(b.value)
}

func (b Base) HiddenField() template.HTML {
	return template.HTML(`<input type="hidden" name="` + template.HTMLEscapeString(b.FieldName()) +
		`" value="` + template.HTMLEscapeString(b.value) + `" />`)
}

// Fallback is the identity filter.
func (b Base) Fallback(rs ResultSet) ResultSet { return rs }

// idBase is shared by kinds whose value is a contact, tag or mail id.
type idBase struct {
	Base
	id int64
}

// ID returns the parsed id.
func (p idBase) ID() int64 { return p.id }

func parseID(kind Kind, value string, index int) (idBase, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return idBase{}, fmt.Errorf("%w: %s=%q is not an integer id", ErrMalformedParameter, kind, value)
	}
	return idBase{Base: NewBase(kind, value, index), id: id}, nil
}

// FullText matches mails whose subject or body matches a text query.
type FullText struct{ Base }

func (p FullText) Predicate() predicate.Node {
	return predicate.AnyOf(
		predicate.Match{Field: predicate.FieldSubject, Text: p.value},
		predicate.Match{Field: predicate.FieldBody, Text: p.value},
	)
}

func (p FullText) Describe(_ context.Context, current *Search, _ Directory) template.HTML {
	text := template.HTMLEscapeString(p.value)
	return template.HTML(`Emails matching text query: <a href="` +
		template.HTMLEscapeString(ForFullText(p.value).URLPath()) + `">` + text + `</a> ` +
		removeLinkHTML(current, p))
}

// HasTag matches mails carrying a tag.
type HasTag struct{ idBase }

func (p HasTag) Predicate() predicate.Node {
	return predicate.Member{Relation: predicate.RelationTags, ID: p.id}
}

func (p HasTag) Describe(ctx context.Context, current *Search, dir Directory) template.HTML {
	return template.HTML("Emails with tag " + string(TagHTML(ctx, dir, p.id)) + "<br />" +
		optionBarHTML(current, p, tagOptions(p.value), 0) + removeLinkHTML(current, p))
}

// LacksTag matches mails not carrying a tag.
type LacksTag struct{ idBase }

func (p LacksTag) Predicate() predicate.Node {
	return predicate.Negate(predicate.Member{Relation: predicate.RelationTags, ID: p.id})
}

func (p LacksTag) Describe(ctx context.Context, current *Search, dir Directory) template.HTML {
	return template.HTML("Emails without tag " + string(TagHTML(ctx, dir, p.id)) + "<br />" +
		optionBarHTML(current, p, tagOptions(p.value), 1) + removeLinkHTML(current, p))
}

func tagOptions(value string) []option {
	return []option{
		{kind: KindTag, value: value, text: "with"},
		{kind: KindNotTag, value: value, text: "without"},
	}
}

// Contact matches mails sent by, to or copied to a contact.
type Contact struct{ idBase }

func (p Contact) Predicate() predicate.Node {
	return predicate.AnyOf(
		predicate.Equals{Field: predicate.FieldSender, Value: p.id},
		predicate.Member{Relation: predicate.RelationTo, ID: p.id},
		predicate.Member{Relation: predicate.RelationCc, ID: p.id},
	)
}

func (p Contact) Describe(ctx context.Context, current *Search, dir Directory) template.HTML {
	return describeContact(ctx, current, dir, p, p.id, "Emails to or from ", 2)
}

// Sender matches mails sent by a contact.
type Sender struct{ idBase }

func (p Sender) Predicate() predicate.Node {
	return predicate.Equals{Field: predicate.FieldSender, Value: p.id}
}

func (p Sender) Describe(ctx context.Context, current *Search, dir Directory) template.HTML {
	return describeContact(ctx, current, dir, p, p.id, "Emails from ", 1)
}

// Recipient matches mails sent or copied to a contact.
type Recipient struct{ idBase }

func (p Recipient) Predicate() predicate.Node {
	return predicate.AnyOf(
		predicate.Member{Relation: predicate.RelationTo, ID: p.id},
		predicate.Member{Relation: predicate.RelationCc, ID: p.id},
	)
}

func (p Recipient) Describe(ctx context.Context, current *Search, dir Directory) template.HTML {
	return describeContact(ctx, current, dir, p, p.id, "Emails to ", 0)
}

func describeContact(ctx context.Context, current *Search, dir Directory, p Parameter, id int64, lead string, selected int) template.HTML {
	options := []option{
		{kind: KindRecipient, value: p.Value(), text: "to"},
		{kind: KindSender, value: p.Value(), text: "from"},
		{kind: KindContact, value: p.Value(), text: "to or from"},
	}
	return template.HTML(lead + string(ContactHTML(ctx, dir, id)) + "<br />" +
		optionBarHTML(current, p, options, selected) + removeLinkHTML(current, p))
}

// Mail matches the mail with a given id.
type Mail struct{ idBase }

func (p Mail) Predicate() predicate.Node {
	return predicate.Equals{Field: predicate.FieldID, Value: p.id}
}

func (p Mail) Describe(_ context.Context, current *Search, _ Directory) template.HTML {
	return template.HTML("Email with unique id " + template.HTMLEscapeString(p.value) + " " +
		removeLinkHTML(current, p))
}

// maxDays bounds the day count so the cutoff date stays representable.
const maxDays = 1_000_000

// now is the clock used to compute the AgeInDays cutoff.
var now = time.Now

// AgeInDays matches mails dated within the last n calendar days. It has no
// predicate; the cutoff is applied at day granularity through Fallback.
type AgeInDays struct {
	Base
	days int
}

// Days returns the parsed day count.
func (p AgeInDays) Days() int { return p.days }

func (p AgeInDays) Predicate() predicate.Node { return nil }

// Cutoff returns the first calendar day (UTC midnight) included by the
// filter.
func (p AgeInDays) Cutoff() time.Time {
	t := now().UTC()
	today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -p.days)
}

func (p AgeInDays) Fallback(rs ResultSet) ResultSet {
	return rs.Since(p.Cutoff())
}

var dayOptions = []struct {
	days int
	text string
}{{1, "day"}, {7, "week"}, {30, "month"}, {365, "year"}}

func (p AgeInDays) Describe(_ context.Context, current *Search, _ Directory) template.HTML {
	unit := " days "
	if p.days == 1 {
		unit = " day "
	}
	options := make([]option, len(dayOptions))
	selected := -1
	for i, o := range dayOptions {
		options[i] = option{kind: KindDays, value: strconv.Itoa(o.days), text: o.text}
		if o.days == p.days {
			selected = i
		}
	}
	return template.HTML("Emails from the last " + template.HTMLEscapeString(p.value) + unit +
		optionBarHTML(current, p, options, selected) + removeLinkHTML(current, p))
}

func init() {
	Register(KindFullText, func(value string, index int) (Parameter, error) {
		return FullText{Base: NewBase(KindFullText, value, index)}, nil
	})
	Register(KindTag, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindTag, value, index)
		if err != nil {
			return nil, err
		}
		return HasTag{b}, nil
	})
	Register(KindNotTag, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindNotTag, value, index)
		if err != nil {
			return nil, err
		}
		return LacksTag{b}, nil
	})
	Register(KindContact, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindContact, value, index)
		if err != nil {
			return nil, err
		}
		return Contact{b}, nil
	})
	Register(KindSender, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindSender, value, index)
		if err != nil {
			return nil, err
		}
		return Sender{b}, nil
	})
	Register(KindRecipient, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindRecipient, value, index)
		if err != nil {
			return nil, err
		}
		return Recipient{b}, nil
	})
	Register(KindMail, func(value string, index int) (Parameter, error) {
		b, err := parseID(KindMail, value, index)
		if err != nil {
			return nil, err
		}
		return Mail{b}, nil
	})
	Register(KindDays, func(value string, index int) (Parameter, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > maxDays {
			return nil, fmt.Errorf("%w: %s=%q is not a day count", ErrMalformedParameter, KindDays, value)
		}
		return AgeInDays{Base: NewBase(KindDays, value, index), days: n}, nil
	})
}
