package cmd

import (
	"strings"
	"testing"
)

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"secret\n", "secret"},
		{"secret\r\nmore\n", "secret"},
		{"no newline", "no newline"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := firstLine(strings.NewReader(tt.in))
		if err != nil {
			t.Fatalf("firstLine(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
