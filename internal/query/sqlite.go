package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/robfisher/mailshare/internal/predicate"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/store"
)

// SQLiteEngine implements Engine using direct SQLite queries.
type SQLiteEngine struct {
	db *sql.DB

	// FTS availability cache - thread-safe with mutex.
	// Only caches successful checks; errors cause retries on next call.
	ftsMu      sync.Mutex
	ftsResult  bool
	ftsChecked bool
}

// NewSQLiteEngine creates a new SQLite-backed query engine.
func NewSQLiteEngine(db *sql.DB) *SQLiteEngine {
	return &SQLiteEngine{db: db}
}

// hasFTSTable checks if the mails_fts table exists.
// Result is cached after first successful check. Errors cause retries on next call.
func (e *SQLiteEngine) hasFTSTable(ctx context.Context) bool {
	e.ftsMu.Lock()
	defer e.ftsMu.Unlock()

	if e.ftsChecked {
		return e.ftsResult
	}

	var count int
	err := e.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='mails_fts'
	`).Scan(&count)
	if err != nil {
		return false
	}

	e.ftsResult = count > 0
	e.ftsChecked = true
	return e.ftsResult
}

// Close is a no-op for SQLiteEngine since it doesn't own the connection.
func (e *SQLiteEngine) Close() error {
	return nil
}

// All returns the set of every mail.
func (e *SQLiteEngine) All() search.ResultSet {
	return &sqliteResultSet{e: e}
}

// sqliteResultSet accumulates filters and compiles them on execution.
// Filter and Since copy, so sets derived from a shared parent are
// independent.
type sqliteResultSet struct {
	e      *SQLiteEngine
	preds  []predicate.Node
	cutoff []time.Time
}

func (rs *sqliteResultSet) Filter(p predicate.Node) search.ResultSet {
	next := rs.clone()
	next.preds = append(next.preds, p)
	return next
}

func (rs *sqliteResultSet) Since(cutoff time.Time) search.ResultSet {
	next := rs.clone()
	next.cutoff = append(next.cutoff, cutoff)
	return next
}

func (rs *sqliteResultSet) clone() *sqliteResultSet {
	return &sqliteResultSet{
		e:      rs.e,
		preds:  append([]predicate.Node(nil), rs.preds...),
		cutoff: append([]time.Time(nil), rs.cutoff...),
	}
}

func (rs *sqliteResultSet) where(ctx context.Context) (string, []interface{}, error) {
	c := &compiler{fts: rs.e.hasFTSTable(ctx)}
	conds := make([]string, 0, len(rs.preds)+len(rs.cutoff))
	for _, p := range rs.preds {
		s, err := c.compile(p)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, "("+s+")")
	}
	for _, t := range rs.cutoff {
		conds = append(conds, "date(m.date) >= date(?)")
		c.args = append(c.args, t.UTC().Format("2006-01-02"))
	}
	if len(conds) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conds, " AND "), c.args, nil
}

func (rs *sqliteResultSet) IDs(ctx context.Context) ([]int64, error) {
	where, args, err := rs.where(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile search: %w", err)
	}
	rows, err := rs.e.db.QueryContext(ctx, `
		SELECT m.id FROM mails m
		WHERE `+where+`
		ORDER BY m.date DESC, m.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("search mails: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mail id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (rs *sqliteResultSet) Count(ctx context.Context) (int64, error) {
	where, args, err := rs.where(ctx)
	if err != nil {
		return 0, fmt.Errorf("compile search: %w", err)
	}
	var n int64
	if err := rs.e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mails m WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mails: %w", err)
	}
	return n, nil
}

// LookupContact implements search.Directory.
func (e *SQLiteEngine) LookupContact(ctx context.Context, id int64) (*search.ContactInfo, error) {
	var c search.ContactInfo
	err := e.db.QueryRowContext(ctx, `SELECT id, name, address FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup contact %d: %w", id, err)
	}
	return &c, nil
}

// LookupTag implements search.Directory.
func (e *SQLiteEngine) LookupTag(ctx context.Context, id int64) (*search.TagInfo, error) {
	var t search.TagInfo
	err := e.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tag %d: %w", id, err)
	}
	return &t, nil
}

const summaryColumns = `
	m.id, m.subject, m.date,
	COALESCE(m.sender_id, 0), COALESCE(c.name, ''), COALESCE(c.address, '')
`

func scanSummary(rows *sql.Rows) (MailSummary, error) {
	var s MailSummary
	var date string
	if err := rows.Scan(&s.ID, &s.Subject, &date, &s.SenderID, &s.SenderName, &s.SenderAddress); err != nil {
		return s, err
	}
	s.Date = store.ParseDate(date)
	return s, nil
}

// Summaries implements Engine.
func (e *SQLiteEngine) Summaries(ctx context.Context, ids []int64) ([]MailSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[int64]*MailSummary, len(ids))
	err := queryInChunks(ctx, e.db, ids, `
		SELECT `+summaryColumns+`
		FROM mails m
		LEFT JOIN contacts c ON c.id = m.sender_id
		WHERE m.id IN (%s)
	`, func(rows *sql.Rows) error {
		s, err := scanSummary(rows)
		if err != nil {
			return err
		}
		byID[s.ID] = &s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mails: %w", err)
	}

	err = queryInChunks(ctx, e.db, ids, `
		SELECT mt.mail_id, t.id, t.name
		FROM mail_tags mt
		JOIN tags t ON t.id = mt.tag_id
		WHERE mt.mail_id IN (%s)
		ORDER BY t.name
	`, func(rows *sql.Rows) error {
		var mailID int64
		var t search.TagInfo
		if err := rows.Scan(&mailID, &t.ID, &t.Name); err != nil {
			return err
		}
		if s, ok := byID[mailID]; ok {
			s.Tags = append(s.Tags, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}

	results := make([]MailSummary, 0, len(byID))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			results = append(results, *s)
		}
	}
	return results, nil
}

// GetMail implements Engine.
func (e *SQLiteEngine) GetMail(ctx context.Context, id int64) (*MailDetail, error) {
	var d MailDetail
	var date string
	err := e.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`,
			m.message_id, m.in_reply_to, m.refs, m.content_type, m.body
		FROM mails m
		LEFT JOIN contacts c ON c.id = m.sender_id
		WHERE m.id = ?
	`, id).Scan(&d.ID, &d.Subject, &date, &d.SenderID, &d.SenderName, &d.SenderAddress,
		&d.MessageID, &d.InReplyTo, &d.References, &d.ContentType, &d.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mail %d: %w", id, err)
	}
	d.Date = store.ParseDate(date)

	if d.To, err = e.recipients(ctx, "mail_to", id); err != nil {
		return nil, err
	}
	if d.Cc, err = e.recipients(ctx, "mail_cc", id); err != nil {
		return nil, err
	}
	if d.Tags, err = e.MailTags(ctx, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (e *SQLiteEngine) recipients(ctx context.Context, table string, mailID int64) ([]search.ContactInfo, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.address
		FROM `+table+` r
		JOIN contacts c ON c.id = r.contact_id
		WHERE r.mail_id = ?
		ORDER BY c.address
	`, mailID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	var out []search.ContactInfo
	for rows.Next() {
		var c search.ContactInfo
		if err := rows.Scan(&c.ID, &c.Name, &c.Address); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MailTags implements Engine.
func (e *SQLiteEngine) MailTags(ctx context.Context, mailID int64) ([]search.TagInfo, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT t.id, t.name
		FROM mail_tags mt
		JOIN tags t ON t.id = mt.tag_id
		WHERE mt.mail_id = ?
		ORDER BY t.name
	`, mailID)
	if err != nil {
		return nil, fmt.Errorf("fetch mail tags: %w", err)
	}
	return scanTags(rows)
}

// ListTags implements Engine.
func (e *SQLiteEngine) ListTags(ctx context.Context) ([]search.TagInfo, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]search.TagInfo, error) {
	defer rows.Close()
	var out []search.TagInfo
	for rows.Next() {
		var t search.TagInfo
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TagCounts implements Engine.
func (e *SQLiteEngine) TagCounts(ctx context.Context, ids []int64) ([]TagCount, error) {
	counts := make(map[int64]*TagCount)
	err := queryInChunks(ctx, e.db, ids, `
		SELECT t.id, t.name, COUNT(*)
		FROM mail_tags mt
		JOIN tags t ON t.id = mt.tag_id
		WHERE mt.mail_id IN (%s)
		GROUP BY t.id
	`, func(rows *sql.Rows) error {
		var tc TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Count); err != nil {
			return err
		}
		if prev, ok := counts[tc.ID]; ok {
			prev.Count += tc.Count
		} else {
			counts[tc.ID] = &tc
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}

	out := make([]TagCount, 0, len(counts))
	for _, tc := range counts {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SenderCounts implements Engine. Ties are broken by name, then id.
func (e *SQLiteEngine) SenderCounts(ctx context.Context, ids []int64, limit int) ([]SenderCount, error) {
	counts := make(map[int64]*SenderCount)
	err := queryInChunks(ctx, e.db, ids, `
		SELECT c.id, c.name, c.address, COUNT(*)
		FROM mails m
		JOIN contacts c ON c.id = m.sender_id
		WHERE m.id IN (%s)
		GROUP BY c.id
	`, func(rows *sql.Rows) error {
		var sc SenderCount
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Address, &sc.Count); err != nil {
			return err
		}
		if prev, ok := counts[sc.ID]; ok {
			prev.Count += sc.Count
		} else {
			counts[sc.ID] = &sc
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count senders: %w", err)
	}

	out := make([]SenderCount, 0, len(counts))
	for _, sc := range counts {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompleteTags implements Engine. Matching is caseless under Unicode
// folding.
func (e *SQLiteEngine) CompleteTags(ctx context.Context, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	tags, err := e.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	needle := fold.String(text)
	prefix := len([]rune(text)) == 1

	var names []string
	for _, t := range tags {
		name := fold.String(t.Name)
		if (prefix && strings.HasPrefix(name, needle)) || (!prefix && strings.Contains(name, needle)) {
			names = append(names, t.Name)
			if limit > 0 && len(names) == limit {
				break
			}
		}
	}
	return names, nil
}

// queryInChunks runs an IN-query over ids in chunks below SQLite's
// parameter limit. queryTemplate holds a single %s for the placeholders.
func queryInChunks(ctx context.Context, db *sql.DB, ids []int64, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}

		rows, err := db.QueryContext(ctx, fmt.Sprintf(queryTemplate, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

var _ Engine = (*SQLiteEngine)(nil)
