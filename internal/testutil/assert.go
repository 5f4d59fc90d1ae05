package testutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// MustNoErr fails the test immediately if err is non-nil. Use it for setup
// steps the rest of the test depends on.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertIDs compares id slices element by element. A nil got equals an
// empty want.
func AssertIDs(t *testing.T, got []int64, want ...int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("got ids %v, want %v", got, want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("at index %d: got id %d, want %d (got %v)", i, got[i], want[i], got)
		}
	}
}

// AssertStrings compares two string slices element-by-element.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("got len %d, want %d: %q", len(got), len(want), got)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("at index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// AssertContainsAll asserts that got contains every substring in subs.
func AssertContainsAll(t *testing.T, got string, subs ...string) {
	t.Helper()
	for _, substr := range subs {
		if !strings.Contains(got, substr) {
			t.Errorf("result %q should contain %q", got, substr)
		}
	}
}

// AssertContainsNone asserts that got contains none of subs.
func AssertContainsNone(t *testing.T, got string, subs ...string) {
	t.Helper()
	for _, substr := range subs {
		if strings.Contains(got, substr) {
			t.Errorf("result %q should not contain %q", got, substr)
		}
	}
}

// AssertValidUTF8 asserts that s is valid UTF-8.
func AssertValidUTF8(t *testing.T, s string) {
	t.Helper()
	if !utf8.ValidString(s) {
		t.Errorf("invalid UTF-8: %q", s)
	}
}
