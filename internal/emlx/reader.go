// Package emlx parses Apple Mail .emlx files.
//
// An .emlx file holds one message: a line with the decimal byte count of
// the message, the raw RFC 5322 message itself, then an optional property
// list with Apple Mail metadata.
package emlx

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"howett.net/plist"
)

// appleEpoch is the reference date of plist date-sent values.
var appleEpoch = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// Message is a parsed .emlx file.
type Message struct {
	// Raw is the RFC 5322 message.
	Raw []byte

	// SentDate is the plist date-sent value, zero when absent.
	SentDate time.Time

	// Flags is the Apple Mail flags word.
	Flags uint64

	// OrigMailbox is the original-mailbox URL, if recorded.
	OrigMailbox string
}

// Parse splits an .emlx file into its message and metadata. A missing or
// malformed property list is not an error.
func Parse(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("emlx: empty file")
	}
	newline := bytes.IndexByte(data, '\n')
	if newline < 0 {
		return nil, fmt.Errorf("emlx: no newline after byte count")
	}
	countStr := strings.TrimSpace(string(data[:newline]))
	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("emlx: invalid byte count %q: %w", countStr, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("emlx: negative byte count %d", count)
	}

	start := int64(newline + 1)
	end := start + count
	if end > int64(len(data)) {
		return nil, fmt.Errorf("emlx: byte count %d exceeds file size (available: %d)", count, int64(len(data))-start)
	}

	msg := &Message{Raw: data[start:end]}
	if rest := bytes.TrimSpace(data[end:]); len(rest) > 0 {
		msg.readMetadata(rest)
	}
	return msg, nil
}

// ParseFile reads and parses an .emlx file from disk.
func ParseFile(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emlx: read %q: %w", path, err)
	}
	return Parse(data)
}

func (m *Message) readMetadata(data []byte) {
	var meta map[string]interface{}
	if _, err := plist.Unmarshal(data, &meta); err != nil {
		return
	}
	if secs, ok := number(meta["date-sent"]); ok {
		m.SentDate = appleEpoch.Add(time.Duration(secs * float64(time.Second)))
	}
	if flags, ok := number(meta["flags"]); ok && flags >= 0 {
		m.Flags = uint64(flags)
	}
	if mbox, ok := meta["original-mailbox"].(string); ok {
		m.OrigMailbox = mbox
	}
}

// number accepts the real and integer encodings Apple Mail writes.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
