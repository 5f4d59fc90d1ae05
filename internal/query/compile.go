package query

import (
	"fmt"
	"strings"

	"github.com/robfisher/mailshare/internal/predicate"
	"github.com/robfisher/mailshare/internal/textutil"
)

// compiler translates predicate trees into SQL conditions over the mails
// table aliased m. Arguments accumulate in order of appearance.
type compiler struct {
	fts  bool
	args []interface{}
}

var scalarColumns = map[predicate.Field]string{
	predicate.FieldID:     "m.id",
	predicate.FieldSender: "m.sender_id",
}

var textColumns = map[predicate.Field]string{
	predicate.FieldSubject: "subject",
	predicate.FieldBody:    "body",
}

var memberTables = map[predicate.Relation]struct{ table, column string }{
	predicate.RelationTags: {"mail_tags", "tag_id"},
	predicate.RelationTo:   {"mail_to", "contact_id"},
	predicate.RelationCc:   {"mail_cc", "contact_id"},
}

func (c *compiler) compile(n predicate.Node) (string, error) {
	switch n := n.(type) {
	case predicate.Equals:
		col, ok := scalarColumns[n.Field]
		if !ok {
			return "", fmt.Errorf("unsupported equality field %q", n.Field)
		}
		c.args = append(c.args, n.Value)
		return col + " = ?", nil

	case predicate.Match:
		col, ok := textColumns[n.Field]
		if !ok {
			return "", fmt.Errorf("unsupported text field %q", n.Field)
		}
		return c.match(col, n.Text), nil

	case predicate.Member:
		rel, ok := memberTables[n.Relation]
		if !ok {
			return "", fmt.Errorf("unsupported relation %q", n.Relation)
		}
		c.args = append(c.args, n.ID)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s r WHERE r.mail_id = m.id AND r.%s = ?)", rel.table, rel.column), nil

	case predicate.Not:
		if n.Inner == nil {
			return "", fmt.Errorf("NOT without operand")
		}
		inner, err := c.compile(n.Inner)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case predicate.Or:
		if len(n.Terms) == 0 {
			return "0=1", nil
		}
		return c.join(n.Terms, " OR ")

	case predicate.And:
		if len(n.Terms) == 0 {
			return "1=1", nil
		}
		return c.join(n.Terms, " AND ")

	default:
		return "", fmt.Errorf("unsupported predicate %T", n)
	}
}

func (c *compiler) join(terms []predicate.Node, sep string) (string, error) {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		s, err := c.compile(t)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	return strings.Join(parts, sep), nil
}

// match requires every word of text to occur in col. Words are split as by
// textutil.Words, so text of only punctuation matches every mail. With FTS5
// the words are matched as column-filtered tokens, otherwise as LIKE
// substrings.
func (c *compiler) match(col, text string) string {
	words := textutil.Words(text)
	if len(words) == 0 {
		return "1=1"
	}
	if c.fts {
		terms := make([]string, len(words))
		for i, w := range words {
			terms[i] = col + ` : "` + w + `"`
		}
		c.args = append(c.args, strings.Join(terms, " AND "))
		return "m.id IN (SELECT rowid FROM mails_fts WHERE mails_fts MATCH ?)"
	}
	conds := make([]string, len(words))
	for i, w := range words {
		conds[i] = "m." + col + " LIKE ?"
		c.args = append(c.args, "%"+w+"%")
	}
	return strings.Join(conds, " AND ")
}
