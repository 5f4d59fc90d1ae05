package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/robfisher/mailshare/internal/search"
)

type countingDirectory struct {
	contacts map[int64]search.ContactInfo
	tags     map[int64]search.TagInfo
	calls    int
	err      error
}

func (d *countingDirectory) LookupContact(_ context.Context, id int64) (*search.ContactInfo, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	c, ok := d.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (d *countingDirectory) LookupTag(_ context.Context, id int64) (*search.TagInfo, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	t, ok := d.tags[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func newBacking() *countingDirectory {
	return &countingDirectory{
		contacts: map[int64]search.ContactInfo{1: {ID: 1, Name: "Alice", Address: "alice@example.com"}},
		tags:     map[int64]search.TagInfo{2: {ID: 2, Name: "budget"}},
	}
}

func TestDirectory_CachesHits(t *testing.T) {
	backing := newBacking()
	d, err := NewDirectory(backing, 8)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := d.LookupContact(ctx, 1)
		if err != nil || c == nil || c.Name != "Alice" {
			t.Fatalf("LookupContact = %+v, %v", c, err)
		}
		tag, err := d.LookupTag(ctx, 2)
		if err != nil || tag == nil || tag.Name != "budget" {
			t.Fatalf("LookupTag = %+v, %v", tag, err)
		}
	}
	if backing.calls != 2 {
		t.Errorf("backing calls = %d, want 2", backing.calls)
	}
	if c, tg := d.Len(); c != 1 || tg != 1 {
		t.Errorf("Len = %d, %d; want 1, 1", c, tg)
	}
}

func TestDirectory_MissesNotCached(t *testing.T) {
	backing := newBacking()
	d, _ := NewDirectory(backing, 8)
	ctx := context.Background()

	if c, err := d.LookupContact(ctx, 5); c != nil || err != nil {
		t.Fatalf("missing contact = %+v, %v", c, err)
	}
	backing.contacts[5] = search.ContactInfo{ID: 5, Name: "Eve"}
	c, err := d.LookupContact(ctx, 5)
	if err != nil || c == nil || c.Name != "Eve" {
		t.Errorf("after create = %+v, %v; want Eve", c, err)
	}
}

func TestDirectory_ErrorsPassThrough(t *testing.T) {
	backing := newBacking()
	backing.err = errors.New("db down")
	d, _ := NewDirectory(backing, 8)
	if _, err := d.LookupTag(context.Background(), 2); err == nil {
		t.Error("expected error")
	}
}

func TestDirectory_ForgetTag(t *testing.T) {
	backing := newBacking()
	d, _ := NewDirectory(backing, 8)
	ctx := context.Background()

	d.LookupTag(ctx, 2)
	backing.tags[2] = search.TagInfo{ID: 2, Name: "finance"}
	d.ForgetTag(2)
	tag, _ := d.LookupTag(ctx, 2)
	if tag == nil || tag.Name != "finance" {
		t.Errorf("after forget = %+v, want finance", tag)
	}

	d.Purge()
	if c, tg := d.Len(); c != 0 || tg != 0 {
		t.Errorf("Len after Purge = %d, %d", c, tg)
	}
}

func TestNewDirectory_InvalidSize(t *testing.T) {
	if _, err := NewDirectory(newBacking(), 0); err == nil {
		t.Error("expected error for size 0")
	}
}
