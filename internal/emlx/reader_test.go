package emlx

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testMIME = "From: alice@example.com\r\nSubject: Hello\r\n\r\nBody\r\n"

func plistDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
` + body + `
</dict>
</plist>
`
}

func TestParse_Metadata(t *testing.T) {
	jan2009 := time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		trailer   string
		wantDate  time.Time
		wantFlags uint64
		wantMbox  string
	}{
		{
			name: "real date",
			trailer: plistDoc(`	<key>date-sent</key>
	<real>252460800</real>
	<key>flags</key>
	<integer>8590195713</integer>
	<key>original-mailbox</key>
	<string>imap://user@example.com/INBOX</string>`),
			wantDate:  jan2009,
			wantFlags: 8590195713,
			wantMbox:  "imap://user@example.com/INBOX",
		},
		{
			name:     "integer date",
			trailer:  plistDoc("\t<key>date-sent</key>\n\t<integer>252460800</integer>"),
			wantDate: jan2009,
		},
		{
			name:     "fractional date",
			trailer:  plistDoc("\t<key>date-sent</key>\n\t<real>252460800.5</real>"),
			wantDate: jan2009.Add(500 * time.Millisecond),
		},
		{name: "empty dict", trailer: plistDoc("")},
		{name: "no plist", trailer: ""},
		{name: "garbage", trailer: "NOT XML AT ALL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := fmt.Sprintf("%d\n%s%s", len(testMIME), testMIME, tt.trailer)
			msg, err := Parse([]byte(data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if string(msg.Raw) != testMIME {
				t.Errorf("Raw = %q, want %q", msg.Raw, testMIME)
			}
			if !msg.SentDate.Equal(tt.wantDate) {
				t.Errorf("SentDate = %v, want %v", msg.SentDate, tt.wantDate)
			}
			if msg.Flags != tt.wantFlags {
				t.Errorf("Flags = %d, want %d", msg.Flags, tt.wantFlags)
			}
			if msg.OrigMailbox != tt.wantMbox {
				t.Errorf("OrigMailbox = %q, want %q", msg.OrigMailbox, tt.wantMbox)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no newline", "42"},
		{"non-numeric count", "abc\nFrom: test\r\n\r\n"},
		{"negative count", "-1\nstuff"},
		{"count past end", "9999\nshort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParse_ByteCountWhitespace(t *testing.T) {
	data := fmt.Sprintf("  %d  \n%s", len(testMIME), testMIME)
	msg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(msg.Raw) != testMIME {
		t.Fatalf("Raw = %q, want %q", msg.Raw, testMIME)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1234.emlx")
	data := fmt.Sprintf("%d\n%s", len(testMIME), testMIME)
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if string(msg.Raw) != testMIME {
		t.Fatalf("Raw = %q, want %q", msg.Raw, testMIME)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.emlx")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
