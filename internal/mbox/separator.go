package mbox

import (
	"bytes"
	"strings"
	"time"
)

type separator struct {
	sender string
	date   time.Time
}

// separatorLayouts are the ctime-like dates found after the sender, with
// and without weekday, seconds and zone. Zoned layouts come first so the
// zone is not left unparsed.
var separatorLayouts = func() []string {
	var zoned, plain []string
	for _, weekday := range []string{"Mon ", ""} {
		for _, clock := range []string{"15:04:05", "15:04"} {
			base := weekday + "Jan 2 " + clock
			for _, zone := range []string{"-0700", "-07:00", "MST"} {
				zoned = append(zoned, base+" "+zone+" 2006", base+" 2006 "+zone)
			}
			plain = append(plain, base+" 2006")
		}
	}
	return append(zoned, plain...)
}()

// zoneOffsets resolves the abbreviations time.Parse cannot place.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"UT":   0,
	"Z":    0,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"AKST": -9 * 3600,
	"AKDT": -8 * 3600,
	"HST":  -10 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"BST":  1 * 3600,
}

// parseSeparator recognizes "From <sender> <date> [anything]". A "From "
// body line without a date is not a separator.
func parseSeparator(line []byte) (separator, bool) {
	if !bytes.HasPrefix(line, fromPrefix) {
		return separator{}, false
	}
	fields := strings.Fields(string(line))
	if len(fields) < 6 {
		return separator{}, false
	}
	for _, layout := range separatorLayouts {
		n := strings.Count(layout, " ") + 1
		if len(fields) < 2+n {
			continue
		}
		t, err := time.Parse(layout, strings.Join(fields[2:2+n], " "))
		if err != nil {
			continue
		}
		if name, off := t.Zone(); off == 0 {
			if o, ok := zoneOffsets[strings.ToUpper(name)]; ok && o != 0 {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone(name, o))
			}
		}
		return separator{sender: fields[1], date: t}, true
	}
	return separator{}, false
}
