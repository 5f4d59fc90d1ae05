// Package query is the read side of the mailshare database. It executes
// search predicates against SQLite and serves the mail, tag and contact
// lookups the web and MCP surfaces render from.
package query

import (
	"time"

	"github.com/robfisher/mailshare/internal/search"
)

// MailSummary is a mail in result lists.
type MailSummary struct {
	ID            int64            `json:"id"`
	Subject       string           `json:"subject"`
	Date          time.Time        `json:"date"`
	SenderID      int64            `json:"sender_id"`
	SenderName    string           `json:"sender_name"`
	SenderAddress string           `json:"sender_address"`
	Tags          []search.TagInfo `json:"tags"`
}

// MailDetail is a full mail with recipients and body.
type MailDetail struct {
	MailSummary
	To          []search.ContactInfo `json:"to"`
	Cc          []search.ContactInfo `json:"cc"`
	MessageID   string               `json:"message_id"`
	InReplyTo   string               `json:"in_reply_to"`
	References  string               `json:"references"`
	ContentType string               `json:"content_type"`
	Body        string               `json:"body"`
}

// TagCount is a tag with the number of mails carrying it within a set.
type TagCount struct {
	search.TagInfo
	Count int64 `json:"count"`
}

// SenderCount is a contact with the number of mails it sent within a set.
type SenderCount struct {
	search.ContactInfo
	Count int64 `json:"count"`
}
