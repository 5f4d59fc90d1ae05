// Package email builds RFC 5322 messages for tests.
package email

import "strings"

// MessageBuilder constructs messages with a fluent API.
type MessageBuilder struct {
	from        string
	to          string
	cc          string
	subject     string
	date        string
	messageID   string
	contentType string
	body        string
	headerKeys  []string
	headerVals  []string
}

// NewMessage creates a MessageBuilder with sensible defaults.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:    "Sender <sender@example.com>",
		to:      "recipient@example.com",
		date:    "Mon, 01 Jan 2024 12:00:00 +0000",
		subject: "Test Message",
		body:    "This is a test message body.",
	}
}

// From sets the From header.
func (b *MessageBuilder) From(v string) *MessageBuilder { b.from = v; return b }

// To sets the To header.
func (b *MessageBuilder) To(v string) *MessageBuilder { b.to = v; return b }

// Cc sets the Cc header.
func (b *MessageBuilder) Cc(v string) *MessageBuilder { b.cc = v; return b }

// Subject sets the Subject header.
func (b *MessageBuilder) Subject(v string) *MessageBuilder { b.subject = v; return b }

// Date sets the Date header. An empty value omits it.
func (b *MessageBuilder) Date(v string) *MessageBuilder { b.date = v; return b }

// MessageID sets the Message-ID header.
func (b *MessageBuilder) MessageID(v string) *MessageBuilder { b.messageID = v; return b }

// ContentType sets the Content-Type header.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

// Body sets the message body.
func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// Header adds an arbitrary header.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	b.headerKeys = append(b.headerKeys, key)
	b.headerVals = append(b.headerVals, value)
	return b
}

// Bytes builds the message with CRLF line endings.
func (b *MessageBuilder) Bytes() []byte {
	var s strings.Builder
	write := func(key, value string) {
		if value != "" {
			s.WriteString(key + ": " + value + "\r\n")
		}
	}
	write("From", b.from)
	write("To", b.to)
	write("Cc", b.cc)
	write("Subject", b.subject)
	write("Date", b.date)
	write("Message-ID", b.messageID)
	write("Content-Type", b.contentType)
	for i, k := range b.headerKeys {
		write(k, b.headerVals[i])
	}
	s.WriteString("\r\n")
	s.WriteString(strings.ReplaceAll(b.body, "\n", "\r\n"))
	return []byte(s.String())
}
