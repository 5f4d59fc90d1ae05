package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// Tag is a label attached to mails. Auto tags are applied at import when
// their name occurs in the subject or body.
type Tag struct {
	ID   int64
	Name string
	Auto bool
}

// GetOrCreateTag returns the tag called name (case-insensitive), creating it
// if needed.
func (s *Store) GetOrCreateTag(name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("get or create tag: empty name")
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return s.tagByName(name)
}

// CreateTag creates a tag, or updates the auto flag of an existing one.
func (s *Store) CreateTag(name string, auto bool) (*Tag, error) {
	t, err := s.GetOrCreateTag(name)
	if err != nil {
		return nil, err
	}
	if t.Auto != auto {
		if _, err := s.db.Exec(`UPDATE tags SET auto = ? WHERE id = ?`, auto, t.ID); err != nil {
			return nil, fmt.Errorf("update tag: %w", err)
		}
		t.Auto = auto
	}
	return t, nil
}

func (s *Store) tagByName(name string) (*Tag, error) {
	var t Tag
	err := s.db.QueryRow(`SELECT id, name, auto FROM tags WHERE name = ?`, name).Scan(&t.ID, &t.Name, &t.Auto)
	if err != nil {
		return nil, fmt.Errorf("get tag %q: %w", name, err)
	}
	return &t, nil
}

// GetTag returns the tag with id, or nil if none.
func (s *Store) GetTag(id int64) (*Tag, error) {
	var t Tag
	err := s.db.QueryRow(`SELECT id, name, auto FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name, &t.Auto)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return &t, nil
}

// AutoTags returns every tag flagged for automatic application.
func (s *Store) AutoTags() ([]Tag, error) {
	rows, err := s.db.Query(`SELECT id, name, auto FROM tags WHERE auto = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list auto tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Auto); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// AddTag attaches a tag to a mail. Attaching twice is a no-op.
func (s *Store) AddTag(mailID, tagID int64) error {
	return s.AddTagToMails(tagID, []int64{mailID})
}

// RemoveTag detaches a tag from a mail. Returns false if it was not attached.
func (s *Store) RemoveTag(mailID, tagID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM mail_tags WHERE mail_id = ? AND tag_id = ?`, mailID, tagID)
	if err != nil {
		return false, fmt.Errorf("remove tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddTagToMails attaches a tag to every existing mail in mailIDs; unknown
// ids are skipped.
func (s *Store) AddTagToMails(tagID int64, mailIDs []int64) error {
	ids := uniqueIDs(mailIDs)
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.Exec(`
				INSERT OR IGNORE INTO mail_tags (mail_id, tag_id)
				SELECT id, ? FROM mails WHERE id = ?
			`, tagID, id)
			if err != nil {
				return fmt.Errorf("add tag %d to mail %d: %w", tagID, id, err)
			}
		}
		return nil
	})
}

// RemoveTagFromMails detaches a tag from every mail in mailIDs.
func (s *Store) RemoveTagFromMails(tagID int64, mailIDs []int64) error {
	ids := uniqueIDs(mailIDs)
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.Exec(`DELETE FROM mail_tags WHERE mail_id = ? AND tag_id = ?`, id, tagID); err != nil {
				return fmt.Errorf("remove tag %d from mail %d: %w", tagID, id, err)
			}
		}
		return nil
	})
}
