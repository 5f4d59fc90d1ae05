package search

import (
	"context"
	"html/template"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/robfisher/mailshare/internal/predicate"
)

// URLPrefix is the path every search URL starts with.
const URLPrefix = "/search/?"

// Pair is one (field name, raw value) entry of a search request.
type Pair struct {
	Name  string
	Value string
}

// Search is an immutable AND-chain of Parameters ordered by index. The zero
// value and the result of New(nil) are the empty search, which matches all
// mail.
//
// Edits (And, Without, Replace) return new Searches and never modify the
// receiver. The pure renderings are computed at construction; Execute and
// DescriptiveHTML are cached for the first Datastore and Directory they see.
type Search struct {
	params []Parameter

	pred    predicate.Node
	urlPath string
	hidden  template.HTML

	mu          sync.Mutex
	results     ResultSet
	resultsFrom Datastore
	html        template.HTML
	htmlFrom    Directory
	htmlDone    bool
}

var fieldNamePattern = regexp.MustCompile(`^([a-zA-Z_]+)(?:-(\d+))?$`)

// MaxIndex is the largest index accepted in a field name. Chains that would
// grow past it are renumbered from 0 in order, so HighestIndex()+1 stays
// parseable.
const MaxIndex = 1 << 20

// SplitFieldName splits "kind-3" into ("kind", 3). A missing suffix yields
// index 0. ok is false when name does not follow the field name grammar or
// the index exceeds MaxIndex.
func SplitFieldName(name string) (kind Kind, index int, ok bool) {
	m := fieldNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	if m[2] == "" {
		return Kind(m[1]), 0, true
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n > MaxIndex {
		return "", 0, false
	}
	return Kind(m[1]), n, true
}

// New builds a Search from request pairs. Entries with a malformed field
// name, an unregistered kind or an unparsable value are dropped, as is the
// "recipient=0" entry submitted by the all-teams selector. Surviving
// parameters are stably sorted by index; an index already taken by an
// earlier parameter is moved past the highest index in use.
func New(pairs []Pair) *Search {
	params := make([]Parameter, 0, len(pairs))
	for _, pair := range pairs {
		kind, index, ok := SplitFieldName(pair.Name)
		if !ok {
			continue
		}
		if kind == KindRecipient && pair.Value == "0" {
			continue
		}
		p, err := Construct(kind, pair.Value, index)
		if err != nil {
			continue
		}
		params = append(params, p)
	}
	sort.SliceStable(params, func(i, j int) bool { return params[i].Index() < params[j].Index() })
	return build(dedupeIndices(params))
}

func dedupeIndices(params []Parameter) []Parameter {
	highest := 0
	seen := make(map[int]bool, len(params))
	collisions := 0
	for _, p := range params {
		highest = max(highest, p.Index())
		if seen[p.Index()] {
			collisions++
		}
		seen[p.Index()] = true
	}
	if collisions == 0 {
		return params
	}
	if highest+collisions > MaxIndex {
		return renumber(params)
	}

	clear(seen)
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		if seen[p.Index()] {
			highest++
			np, err := Construct(p.Kind(), p.Value(), highest)
			if err != nil {
				continue
			}
			p = np
		}
		seen[p.Index()] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// renumber gives params the indices 0..n-1 in their current order.
func renumber(params []Parameter) []Parameter {
	out := make([]Parameter, 0, len(params))
	for _, p := range params {
		np, err := Construct(p.Kind(), p.Value(), len(out))
		if err != nil {
			continue
		}
		out = append(out, np)
	}
	return out
}

// build wraps an already ordered, index-unique parameter list.
func build(params []Parameter) *Search {
	s := &Search{params: params}
	terms := make([]predicate.Node, 0, len(params))
	frags := make([]string, len(params))
	var hidden strings.Builder
	for i, p := range params {
		if pred := p.Predicate(); pred != nil {
			terms = append(terms, pred)
		}
		frags[i] = p.URLFragment()
		hidden.WriteString(string(p.HiddenField()))
	}
	s.pred = predicate.AllOf(terms...)
	s.urlPath = URLPrefix + strings.Join(frags, "&")
	s.hidden = template.HTML(hidden.String())
	return s
}

// FromValues builds a Search from decoded query values. Field names are
// visited in lexical order so the result is deterministic.
func FromValues(values url.Values) *Search {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	var pairs []Pair
	for _, name := range names {
		for _, v := range values[name] {
			pairs = append(pairs, Pair{Name: name, Value: v})
		}
	}
	return New(pairs)
}

// FromURL builds a Search from the query string after the last '?' in raw.
// A string without '?' is treated as a bare query string. Undecodable
// entries are skipped.
func FromURL(raw string) *Search {
	if i := strings.LastIndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	return New(ParseQuery(raw))
}

// ParseQuery decodes a query string into pairs, preserving their order.
func ParseQuery(query string) []Pair {
	var pairs []Pair
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(name)
		if err != nil {
			continue
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			continue
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
	return pairs
}

// Parameters returns the chain in order.
func (s *Search) Parameters() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Pairs returns the chain as field name/value pairs.
func (s *Search) Pairs() []Pair {
	pairs := make([]Pair, len(s.params))
	for i, p := range s.params {
		pairs[i] = Pair{Name: p.FieldName(), Value: p.Value()}
	}
	return pairs
}

// Len returns the number of parameters.
func (s *Search) Len() int { return len(s.params) }

// IsEmpty reports whether the search has no parameters.
func (s *Search) IsEmpty() bool { return len(s.params) == 0 }

// HighestIndex returns the largest parameter index, or 0 for an empty
// search.
func (s *Search) HighestIndex() int {
	highest := 0
	for _, p := range s.params {
		highest = max(highest, p.Index())
	}
	return highest
}

// Predicate returns the conjunction of every parameter predicate. Parameters
// without a predicate are omitted; an empty conjunction matches everything.
func (s *Search) Predicate() predicate.Node {
	if s.pred == nil {
		return predicate.And{}
	}
	return s.pred
}

// URLPath returns the canonical "/search/?..." path.
func (s *Search) URLPath() string {
	if s.urlPath == "" {
		return URLPrefix
	}
	return s.urlPath
}

// String returns URLPath.
func (s *Search) String() string { return s.URLPath() }

// HiddenFormHTML returns one hidden input per parameter so a form can
// resubmit the search with an extra field.
func (s *Search) HiddenFormHTML() template.HTML { return s.hidden }

// NextFullTextFieldName returns a field name for an additional full-text box
// that cannot collide with the current indices. Past MaxIndex it takes the
// lowest free index instead.
func (s *Search) NextFullTextFieldName() string {
	next := s.HighestIndex() + 1
	if next > MaxIndex {
		next = s.lowestFreeIndex()
	}
	return string(KindFullText) + "-" + strconv.Itoa(next)
}

func (s *Search) lowestFreeIndex() int {
	used := make(map[int]bool, len(s.params))
	for _, p := range s.params {
		used[p.Index()] = true
	}
	i := 0
	for used[i] {
		i++
	}
	return i
}

// Execute narrows ds.All() by each parameter in turn, using its predicate or
// its fallback filter. The result for the first datastore is cached; ds is
// compared by identity, so it should be a pointer or another comparable
// value.
func (s *Search) Execute(ds Datastore) ResultSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results != nil && s.resultsFrom == ds {
		return s.results
	}
	rs := ds.All()
	for _, p := range s.params {
		if pred := p.Predicate(); pred != nil {
			rs = rs.Filter(pred)
		} else {
			rs = p.Fallback(rs)
		}
	}
	if s.results == nil {
		s.results, s.resultsFrom = rs, ds
	}
	return rs
}

// DescriptiveHTML renders one paragraph per parameter describing it, with
// remove and alternate links. Names are resolved through dir.
func (s *Search) DescriptiveHTML(ctx context.Context, dir Directory) template.HTML {
	s.mu.Lock()
	if s.htmlDone && s.htmlFrom == dir {
		html := s.html
		s.mu.Unlock()
		return html
	}
	s.mu.Unlock()

	var b strings.Builder
	for _, p := range s.params {
		b.WriteString("<p>")
		b.WriteString(string(p.Describe(ctx, s, dir)))
		b.WriteString("</p>\n")
	}
	html := template.HTML(b.String())

	s.mu.Lock()
	if !s.htmlDone {
		s.html, s.htmlFrom, s.htmlDone = html, dir, true
	}
	s.mu.Unlock()
	return html
}

// And returns s with the head parameter of other appended at
// HighestIndex()+1, so an empty s places it at index 1. A chain already at
// MaxIndex is renumbered first. An empty other yields a copy of s.
func (s *Search) And(other *Search) *Search {
	if other == nil || other.IsEmpty() {
		return build(s.Parameters())
	}
	params := s.Parameters()
	index := s.HighestIndex() + 1
	if index > MaxIndex {
		params = renumber(params)
		index = len(params)
	}
	head := other.params[0]
	p, err := Construct(head.Kind(), head.Value(), index)
	if err != nil {
		return build(params)
	}
	return build(append(params, p))
}

// Without returns s with the first parameter matching both kind and value
// removed. Without a match it returns an equal copy.
func (s *Search) Without(kind Kind, value string) *Search {
	params := s.Parameters()
	for i, p := range params {
		if p.Kind() == kind && p.Value() == value {
			return build(append(params[:i], params[i+1:]...))
		}
	}
	return build(params)
}

// Replace returns s with the parameter at old's index replaced by a new
// parameter of kind and value at the same index. If no parameter has that
// index, or the new value is malformed, it returns an equal copy.
func (s *Search) Replace(old Parameter, kind Kind, value string) *Search {
	params := s.Parameters()
	for i, p := range params {
		if p.Index() != old.Index() {
			continue
		}
		np, err := Construct(kind, value, p.Index())
		if err != nil {
			break
		}
		params[i] = np
		break
	}
	return build(params)
}

// Equal reports whether both searches hold the same parameters in the same
// order.
func (s *Search) Equal(other *Search) bool {
	if len(s.params) != len(other.params) {
		return false
	}
	for i, p := range s.params {
		q := other.params[i]
		if p.Kind() != q.Kind() || p.Value() != q.Value() || p.Index() != q.Index() {
			return false
		}
	}
	return true
}
