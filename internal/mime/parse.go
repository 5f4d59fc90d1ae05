// Package mime parses RFC 5322 messages into the fields mailshare stores.
package mime

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"
)

// Message is a parsed email message.
type Message struct {
	Subject     string
	Date        time.Time
	From        []Address
	To          []Address
	Cc          []Address
	MessageID   string
	InReplyTo   string
	References  string
	ThreadIndex string
	ContentType string
	BodyText    string
	BodyHTML    string
	Errors      []string // non-fatal parse problems reported by enmime
}

// Address is an email address with optional display name.
type Address struct {
	Name  string
	Email string
}

// Parse parses raw message bytes.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	msg := &Message{
		Subject:     env.GetHeader("Subject"),
		MessageID:   strings.TrimSpace(env.GetHeader("Message-ID")),
		InReplyTo:   strings.TrimSpace(env.GetHeader("In-Reply-To")),
		References:  strings.Join(strings.Fields(env.GetHeader("References")), " "),
		ThreadIndex: env.GetHeader("Thread-Index"),
		ContentType: env.GetHeader("Content-Type"),
		BodyText:    env.Text,
		BodyHTML:    env.HTML,
		From:        parseAddressList(env, "From"),
		To:          parseAddressList(env, "To"),
		Cc:          parseAddressList(env, "Cc"),
	}
	if d := env.GetHeader("Date"); d != "" {
		msg.Date = parseDate(d)
	}
	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

func parseAddressList(env *enmime.Envelope, header string) []Address {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}
	addresses := make([]Address, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		addresses = append(addresses, Address{Name: addr.Name, Email: strings.ToLower(addr.Address)})
	}
	return addresses
}

var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	"02 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate parses a Date header in any of the common formats, ignoring a
// trailing parenthesized zone comment. Returns the zero time on failure.
func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.LastIndex(s, "("); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Body returns the plain text body, falling back to the text of the HTML
// part.
func (m *Message) Body() string {
	if m.BodyText != "" {
		return m.BodyText
	}
	if m.BodyHTML != "" {
		return StripHTML(m.BodyHTML)
	}
	return ""
}

// Sender returns the first From address, or the zero Address.
func (m *Message) Sender() Address {
	if len(m.From) > 0 {
		return m.From[0]
	}
	return Address{}
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "ul": true, "ol": true,
}

var skippedElements = map[string]bool{"script": true, "style": true, "head": true}

// StripHTML returns the text content of an HTML document. Block elements
// become line breaks, whitespace runs collapse, and at most one blank line
// separates paragraphs.
func StripHTML(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return normalizeText(b.String())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] && tt != html.SelfClosingTagToken {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
				continue
			}
			if blockElements[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
