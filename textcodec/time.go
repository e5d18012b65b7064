package textcodec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layouts for the two date formats crossing the archive boundary: the
// IMAP INTERNALDATE form and the asctime form used on mbox From lines.
const (
	imapTimeLayout     = "02-Jan-2006 15:04:05 -0700"
	imapTimeBareLayout = "02-Jan-2006 15:04:05"
)

// ErrTimeZoneUnknown reports a time value that carries neither explicit
// UTC nor explicit local provenance. This is a caller contract
// violation, not malformed external data.
var ErrTimeZoneUnknown = errors.New("textcodec: time is neither UTC nor local")

// DecodeIMapTime parses an IMAP date-time such as
// "17-Jul-1996 02:44:25 -0700". Single-digit days and a missing zone
// (interpreted as UTC) are tolerated, since servers disagree here.
func DecodeIMapTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{
		imapTimeLayout,
		"2-Jan-2006 15:04:05 -0700",
		imapTimeBareLayout,
		"2-Jan-2006 15:04:05",
	} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse imap time %q", text)
}

// EncodeIMapTime formats t as an IMAP date-time. The zero time and any
// year at or beyond 9999 are sentinels that encode as "now".
func EncodeIMapTime(t time.Time) string {
	return clampSentinel(t).Format(imapTimeLayout)
}

// DecodeAscTime parses an asctime date such as
// "Sat Jul 13 12:08:57 1996". The result carries UTC provenance.
func DecodeAscTime(text string) (time.Time, error) {
	t, err := time.Parse(time.ANSIC, strings.TrimSpace(text))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse asctime: %w", err)
	}
	return t, nil
}

// EncodeAscTime formats t as an asctime date for an mbox From line.
// Sentinel inputs encode as "now". A time located in anything other
// than time.UTC or time.Local is rejected with ErrTimeZoneUnknown:
// the caller must convert explicitly before writing.
func EncodeAscTime(t time.Time) (string, error) {
	t = clampSentinel(t)
	if loc := t.Location(); loc != time.UTC && loc != time.Local {
		return "", fmt.Errorf("%w: %v", ErrTimeZoneUnknown, loc)
	}
	return t.Format(time.ANSIC), nil
}

func clampSentinel(t time.Time) time.Time {
	if t.IsZero() || t.Year() >= 9999 {
		return time.Now()
	}
	return t
}
