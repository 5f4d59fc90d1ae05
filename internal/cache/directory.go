// Package cache provides caching wrappers used while rendering searches.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/robfisher/mailshare/internal/search"
)

// Directory wraps a search.Directory with LRU caches for contacts and tags.
// Only found entries are cached, so a contact created after a miss is seen
// on the next lookup.
type Directory struct {
	next     search.Directory
	contacts *lru.Cache[int64, search.ContactInfo]
	tags     *lru.Cache[int64, search.TagInfo]
}

// NewDirectory creates a caching directory holding up to size contacts and
// size tags.
func NewDirectory(next search.Directory, size int) (*Directory, error) {
	contacts, err := lru.New[int64, search.ContactInfo](size)
	if err != nil {
		return nil, fmt.Errorf("contact cache: %w", err)
	}
	tags, err := lru.New[int64, search.TagInfo](size)
	if err != nil {
		return nil, fmt.Errorf("tag cache: %w", err)
	}
	return &Directory{next: next, contacts: contacts, tags: tags}, nil
}

// LookupContact implements search.Directory.
func (d *Directory) LookupContact(ctx context.Context, id int64) (*search.ContactInfo, error) {
	if c, ok := d.contacts.Get(id); ok {
		return &c, nil
	}
	c, err := d.next.LookupContact(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	d.contacts.Add(id, *c)
	return c, nil
}

// LookupTag implements search.Directory.
func (d *Directory) LookupTag(ctx context.Context, id int64) (*search.TagInfo, error) {
	if t, ok := d.tags.Get(id); ok {
		return &t, nil
	}
	t, err := d.next.LookupTag(ctx, id)
	if err != nil || t == nil {
		return t, err
	}
	d.tags.Add(id, *t)
	return t, nil
}

// ForgetTag drops a cached tag, after a rename or delete.
func (d *Directory) ForgetTag(id int64) {
	d.tags.Remove(id)
}

// ForgetContact drops a cached contact.
func (d *Directory) ForgetContact(id int64) {
	d.contacts.Remove(id)
}

// Purge empties both caches.
func (d *Directory) Purge() {
	d.contacts.Purge()
	d.tags.Purge()
}

// Len returns the number of cached contacts and tags.
func (d *Directory) Len() (contacts, tags int) {
	return d.contacts.Len(), d.tags.Len()
}

var _ search.Directory = (*Directory)(nil)
