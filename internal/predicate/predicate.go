// Package predicate provides a small declarative boolean expression tree over
// mail records. Datastore backends translate these trees into their own query
// form (SQL WHERE clauses, bitmap operations).
package predicate

import (
	"strconv"
	"strings"
)

// Field names a scalar column of a mail record.
type Field string

const (
	FieldID      Field = "id"
	FieldSubject Field = "subject"
	FieldBody    Field = "body"
	FieldSender  Field = "sender"
)

// Relation names a many-to-many association of a mail record.
type Relation string

const (
	RelationTags Relation = "tags"
	RelationTo   Relation = "to"
	RelationCc   Relation = "cc"
)

// Node is one predicate expression. The set of implementations is closed:
// Equals, Match, Member, Not, Or and And.
type Node interface {
	String() string
	node()
}

// Equals matches records whose Field equals Value.
type Equals struct {
	Field Field
	Value int64
}

// Match matches records whose text Field contains Text (full-text semantics).
type Match struct {
	Field Field
	Text  string
}

// Member matches records associated with ID through Relation.
type Member struct {
	Relation Relation
	ID       int64
}

// Not negates Inner.
type Not struct {
	Inner Node
}

// Or matches records matching any of Terms.
type Or struct {
	Terms []Node
}

// And matches records matching all of Terms. An empty And matches everything.
type And struct {
	Terms []Node
}

func (Equals) node() {}
func (Match) node()  {}
func (Member) node() {}
func (Not) node()    {}
func (Or) node()     {}
func (And) node()    {}

func (e Equals) String() string {
	return string(e.Field) + " = " + strconv.FormatInt(e.Value, 10)
}

func (m Match) String() string {
	return string(m.Field) + " ~ " + strconv.Quote(m.Text)
}

func (m Member) String() string {
	return string(m.Relation) + " has " + strconv.FormatInt(m.ID, 10)
}

func (n Not) String() string {
	return "NOT " + group(n.Inner)
}

func (o Or) String() string {
	return join(o.Terms, " OR ")
}

func (a And) String() string {
	if len(a.Terms) == 0 {
		return "TRUE"
	}
	return join(a.Terms, " AND ")
}

func join(terms []Node, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = group(t)
	}
	return strings.Join(parts, sep)
}

// group parenthesizes compound children so String output is unambiguous.
func group(n Node) string {
	switch v := n.(type) {
	case Or:
		if len(v.Terms) > 1 {
			return "(" + v.String() + ")"
		}
	case And:
		if len(v.Terms) > 1 {
			return "(" + v.String() + ")"
		}
	}
	return n.String()
}

// AnyOf builds a disjunction, collapsing the single-term case.
func AnyOf(terms ...Node) Node {
	if len(terms) == 1 {
		return terms[0]
	}
	return Or{Terms: terms}
}

// AllOf builds a conjunction, flattening nested conjunctions and collapsing
// the single-term case.
func AllOf(terms ...Node) Node {
	flat := make([]Node, 0, len(terms))
	for _, t := range terms {
		if t == nil {
			continue
		}
		if a, ok := t.(And); ok {
			flat = append(flat, a.Terms...)
			continue
		}
		flat = append(flat, t)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return And{Terms: flat}
}

// Negate wraps n in Not, unwrapping a double negation.
func Negate(n Node) Node {
	if v, ok := n.(Not); ok {
		return v.Inner
	}
	return Not{Inner: n}
}

// Walk calls fn for n and every descendant in depth-first order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch v := n.(type) {
	case Not:
		Walk(v.Inner, fn)
	case Or:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	case And:
		for _, t := range v.Terms {
			Walk(t, fn)
		}
	}
}
