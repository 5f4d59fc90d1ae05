package testutil

import (
	"path/filepath"
	"testing"

	"github.com/robfisher/mailshare/internal/store"
)

// NewTestStore opens a fresh schema-initialized database in a temp dir and
// closes it when the test ends.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "mailshare.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}
