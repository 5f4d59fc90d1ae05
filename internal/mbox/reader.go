// Package mbox splits mbox archives into messages.
//
// Each message follows a "From <sender> <date>" separator line. Body lines
// matching ^>+From are unquoted by removing one '>' (mboxrd).
package mbox

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMessageTooLarge is returned by Next for a message over the size limit.
// The reader stays usable and continues with the following message.
var ErrMessageTooLarge = errors.New("mbox message exceeds max size")

// Message is one message of an archive.
type Message struct {
	// Sender is the envelope sender named on the separator line.
	Sender string
	// Date is the separator date.
	Date time.Time
	// Raw is the RFC 5322 message without the separator line.
	Raw []byte
}

// Reader reads one message at a time from an mbox stream.
type Reader struct {
	br       *bufio.Reader
	maxBytes int64
	next     *separator
}

// NewReader returns a Reader over r. Messages larger than maxBytes are
// skipped with ErrMessageTooLarge; maxBytes <= 0 disables the limit.
func NewReader(r io.Reader, maxBytes int64) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64<<10), maxBytes: maxBytes}
}

// Next returns the next message, or io.EOF after the last one. Text before
// the first separator is ignored.
func (r *Reader) Next() (*Message, error) {
	for r.next == nil {
		line, err := r.br.ReadBytes('\n')
		if sep, ok := parseSeparator(line); ok {
			r.next = &sep
			break
		}
		if err != nil {
			return nil, err
		}
	}
	sep := *r.next
	r.next = nil

	var raw bytes.Buffer
	tooLarge := false
	for {
		line, err := r.br.ReadBytes('\n')
		if len(line) > 0 {
			if next, ok := parseSeparator(line); ok {
				r.next = &next
				break
			}
			line = unquoteFrom(line)
			switch {
			case tooLarge:
			case r.maxBytes > 0 && int64(raw.Len()+len(line)) > r.maxBytes:
				tooLarge = true
				raw.Reset()
			default:
				raw.Write(line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if tooLarge {
		return nil, fmt.Errorf("%w: from %s at %s, limit %d bytes",
			ErrMessageTooLarge, sep.sender, sep.date.Format(time.RFC3339), r.maxBytes)
	}
	return &Message{Sender: sep.sender, Date: sep.date, Raw: raw.Bytes()}, nil
}

var fromPrefix = []byte("From ")

// unquoteFrom removes one '>' from a line matching ^>+From .
func unquoteFrom(line []byte) []byte {
	rest := bytes.TrimLeft(line, ">")
	if len(rest) == len(line) || !bytes.HasPrefix(rest, fromPrefix) {
		return line
	}
	return line[1:]
}
