package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/robfisher/mailshare/internal/mime"
)

// Contact is a mail participant, unique by address (case-insensitive).
type Contact struct {
	ID      int64
	Name    string
	Address string
}

// EnsureContact gets or creates a contact by address. An empty stored name
// is filled in from name.
func (s *Store) EnsureContact(name, address string) (int64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, fmt.Errorf("ensure contact: empty address")
	}

	var id int64
	var existing string
	err := s.db.QueryRow(`SELECT id, name FROM contacts WHERE address = ?`, address).Scan(&id, &existing)
	if err == nil {
		if existing == "" && name != "" {
			if _, err := s.db.Exec(`UPDATE contacts SET name = ? WHERE id = ?`, name, id); err != nil {
				return 0, fmt.Errorf("update contact name: %w", err)
			}
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("get contact: %w", err)
	}

	result, err := s.db.Exec(`INSERT INTO contacts (name, address) VALUES (?, ?)`, name, address)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	return result.LastInsertId()
}

// EnsureContactsBatch gets or creates contacts for addresses. Returns a map
// of lowercased address to contact id.
func (s *Store) EnsureContactsBatch(addresses []mime.Address) (map[string]int64, error) {
	result := make(map[string]int64)
	var emails []string
	for _, addr := range addresses {
		if addr.Email == "" {
			continue
		}
		if _, err := s.EnsureContact(addr.Name, addr.Email); err != nil {
			return nil, err
		}
		emails = append(emails, addr.Email)
	}
	if len(emails) == 0 {
		return result, nil
	}

	err := eachChunk(len(emails), maxParams, func(start, end int) error {
		chunk := emails[start:end]
		args := make([]interface{}, len(chunk))
		for i, e := range chunk {
			args[i] = e
		}
		rows, err := s.db.Query(`SELECT address, id FROM contacts WHERE address IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var address string
			var id int64
			if err := rows.Scan(&address, &id); err != nil {
				return err
			}
			result[strings.ToLower(address)] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch contact ids: %w", err)
	}
	return result, nil
}

// GetContactByAddress returns the contact with address, or nil if none.
func (s *Store) GetContactByAddress(address string) (*Contact, error) {
	var c Contact
	err := s.db.QueryRow(`SELECT id, name, address FROM contacts WHERE address = ?`, address).
		Scan(&c.ID, &c.Name, &c.Address)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact by address: %w", err)
	}
	return &c, nil
}
