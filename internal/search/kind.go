// Package search models a mail search as an immutable AND-chain of typed
// parameters that can be rendered as a URL, as HTML and as a datastore
// predicate, and edited copy-on-write.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Kind is the textual discriminator of a search parameter ("query",
// "tag_id", ...). It is the field name prefix used in search URLs.
type Kind string

// Built-in parameter kinds.
const (
	KindFullText  Kind = "query"
	KindTag       Kind = "tag_id"
	KindNotTag    Kind = "ntag_id"
	KindContact   Kind = "contact"
	KindSender    Kind = "sender"
	KindRecipient Kind = "recipient"
	KindMail      Kind = "mail_id"
	KindDays      Kind = "days"
)

var (
	// ErrUnknownKind is returned when no factory is registered for a kind.
	ErrUnknownKind = errors.New("unknown search parameter kind")
	// ErrMalformedParameter is returned when a raw value cannot be parsed
	// into the typed form a kind requires.
	ErrMalformedParameter = errors.New("malformed search parameter")
)

// Factory builds a Parameter of one kind from its raw value and chain index.
// It must return an error wrapping ErrMalformedParameter rather than a
// partially valid Parameter.
type Factory func(value string, index int) (Parameter, error)

var kindNamePattern = regexp.MustCompile(`^[a-zA-Z_]+$`)

var registry = struct {
	sync.RWMutex
	factories map[Kind]Factory
}{factories: make(map[Kind]Factory)}

// Register associates kind with factory. It panics if kind is not a valid
// field name prefix or is already registered; registration is meant to
// happen from init functions.
func Register(kind Kind, factory Factory) {
	if !kindNamePattern.MatchString(string(kind)) {
		panic(fmt.Sprintf("search: invalid kind name %q", kind))
	}
	if factory == nil {
		panic(fmt.Sprintf("search: nil factory for kind %q", kind))
	}
	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.factories[kind]; dup {
		panic(fmt.Sprintf("search: kind %q registered twice", kind))
	}
	registry.factories[kind] = factory
}

// Lookup returns the factory registered for kind.
func Lookup(kind Kind) (Factory, bool) {
	registry.RLock()
	defer registry.RUnlock()
	f, ok := registry.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in lexical order.
func Kinds() []Kind {
	registry.RLock()
	defer registry.RUnlock()
	kinds := make([]Kind, 0, len(registry.factories))
	for k := range registry.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Construct builds a Parameter of the given kind.
func Construct(kind Kind, value string, index int) (Parameter, error) {
	f, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: negative index %d", ErrMalformedParameter, index)
	}
	return f(value, index)
}
