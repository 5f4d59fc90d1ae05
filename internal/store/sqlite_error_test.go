package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// typedNilError hands errors.As a nil *sqlite3.Error.
type typedNilError struct{}

func (typedNilError) Error() string { return "typed nil" }

func (typedNilError) As(target any) bool {
	if ptr, ok := target.(**sqlite3.Error); ok {
		*ptr = nil
		return true
	}
	return false
}

func TestIsSQLiteError(t *testing.T) {
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}

	tests := []struct {
		name   string
		err    error
		substr string
		want   bool
	}{
		{"wrapped value", fmt.Errorf("insert: %w", constraint), "constraint failed", true},
		{"wrapped pointer", fmt.Errorf("insert: %w", &constraint), "constraint failed", true},
		{"unrelated substring", fmt.Errorf("insert: %w", constraint), "no such table", false},
		{"typed nil pointer", typedNilError{}, "any", false},
		{"plain error", errors.New("constraint failed"), "constraint failed", false},
		{"nil", nil, "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteError(tt.err, tt.substr); got != tt.want {
				t.Errorf("isSQLiteError(%v, %q) = %v, want %v", tt.err, tt.substr, got, tt.want)
			}
		})
	}
}

func TestIsSQLiteError_FromDriver(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "err.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	if _, err := st.db.Exec(`INSERT INTO tags (name) VALUES ('dup')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = st.db.Exec(`INSERT INTO tags (name) VALUES ('DUP')`)
	if !isSQLiteError(err, "UNIQUE constraint failed") {
		t.Errorf("duplicate tag err = %v, want UNIQUE constraint failure", err)
	}
}
