package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the storage format of mails.date. Dates are stored in UTC.
const DateLayout = "2006-01-02 15:04:05"

// Mail is a stored mail with its recipient contact ids.
type Mail struct {
	ID          int64
	SenderID    int64
	Subject     string
	Date        time.Time
	MessageID   string
	ThreadIndex string
	InReplyTo   string
	References  string
	ContentType string
	Body        string
	To          []int64
	Cc          []int64
}

// InsertMail stores m and its recipients in one transaction and returns the
// new mail id.
func (s *Store) InsertMail(m *Mail) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		var sender interface{}
		if m.SenderID != 0 {
			sender = m.SenderID
		}
		result, err := tx.Exec(`
			INSERT INTO mails (sender_id, subject, date, message_id, thread_index, in_reply_to, refs, content_type, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sender, m.Subject, m.Date.UTC().Format(DateLayout), m.MessageID, m.ThreadIndex,
			m.InReplyTo, m.References, m.ContentType, m.Body)
		if err != nil {
			return fmt.Errorf("insert mail: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertRecipients(tx, "mail_to", id, m.To); err != nil {
			return fmt.Errorf("insert to: %w", err)
		}
		if err := insertRecipients(tx, "mail_cc", id, m.Cc); err != nil {
			return fmt.Errorf("insert cc: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertRecipients(tx *sql.Tx, table string, mailID int64, contactIDs []int64) error {
	ids := uniqueIDs(contactIDs)
	if len(ids) == 0 {
		return nil
	}
	query := "INSERT OR IGNORE INTO " + table + " (mail_id, contact_id) VALUES "
	return eachChunk(len(ids), maxParams/2, func(start, end int) error {
		tuples := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*2)
		for _, contactID := range ids[start:end] {
			tuples = append(tuples, "(?, ?)")
			args = append(args, mailID, contactID)
		}
		_, err := tx.Exec(query+strings.Join(tuples, ","), args...)
		return err
	})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// MailIDByMessageID returns the id of the mail with the given Message-ID
// header, or 0 if none is stored.
func (s *Store) MailIDByMessageID(messageID string) (int64, error) {
	if messageID == "" {
		return 0, nil
	}
	var id int64
	err := s.db.QueryRow(`SELECT id FROM mails WHERE message_id = ? LIMIT 1`, messageID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup message id: %w", err)
	}
	return id, nil
}

// DeleteMail removes a mail with its recipients and taggings. Returns false
// if no such mail exists.
func (s *Store) DeleteMail(id int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM mails WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete mail: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MailRecord is the denormalized form of a mail used to build in-memory
// indexes.
type MailRecord struct {
	ID       int64
	Date     time.Time
	SenderID int64
	To       []int64
	Cc       []int64
	Tags     []int64
	Subject  string
	Body     string
}

const mailRecordQuery = `
	SELECT m.id, m.date, COALESCE(m.sender_id, 0), m.subject, m.body,
		COALESCE((SELECT group_concat(contact_id) FROM mail_to WHERE mail_id = m.id), ''),
		COALESCE((SELECT group_concat(contact_id) FROM mail_cc WHERE mail_id = m.id), ''),
		COALESCE((SELECT group_concat(tag_id) FROM mail_tags WHERE mail_id = m.id), '')
	FROM mails m
`

// ScanMails calls fn for every mail in id order.
func (s *Store) ScanMails(ctx context.Context, fn func(*MailRecord) error) error {
	if err := s.scanMailRecords(ctx, mailRecordQuery+" ORDER BY m.id", nil, fn); err != nil {
		return fmt.Errorf("scan mails: %w", err)
	}
	return nil
}

// ScanMailsByID calls fn for each listed mail that exists, in id order
// within each chunk of ids.
func (s *Store) ScanMailsByID(ctx context.Context, ids []int64, fn func(*MailRecord) error) error {
	return eachChunk(len(ids), maxParams, func(start, end int) error {
		chunk := ids[start:end]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := mailRecordQuery + " WHERE m.id IN (" + placeholders(len(chunk)) + ") ORDER BY m.id"
		if err := s.scanMailRecords(ctx, query, args, fn); err != nil {
			return fmt.Errorf("scan mails by id: %w", err)
		}
		return nil
	})
}

func (s *Store) scanMailRecords(ctx context.Context, query string, args []interface{}, fn func(*MailRecord) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec MailRecord
		var date, to, cc, tags string
		if err := rows.Scan(&rec.ID, &date, &rec.SenderID, &rec.Subject, &rec.Body, &to, &cc, &tags); err != nil {
			return fmt.Errorf("scan mail row: %w", err)
		}
		rec.Date = ParseDate(date)
		rec.To = splitIDs(to)
		rec.Cc = splitIDs(cc)
		rec.Tags = splitIDs(tags)
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ParseDate parses a stored mails.date value. The driver may hand back
// either DateLayout or RFC 3339; unparsable values yield the zero time.
func ParseDate(v string) time.Time {
	for _, layout := range []string{DateLayout, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
