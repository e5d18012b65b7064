// Package textcodec implements the string codecs used at the boundary
// between an IMAP server and the local archive: quoted strings, charset
// conversion, RFC 2047 header words, RFC 3501 modified UTF-7 mailbox
// names and the date formats of both worlds. All decode functions are
// fed untrusted external data and degrade silently instead of failing:
// malformed input comes back unchanged.
package textcodec

import "strings"

// QuotedString wraps input in double quotes, doubling embedded quote and
// backslash characters. Characters outside the printable ASCII range are
// kept when allow8Bit is set and replaced by '?' otherwise. The returned
// bool reports whether the original input was pure printable ASCII; it
// is false whenever a replacement happened or would have happened.
func QuotedString(input string, allow8Bit bool) (string, bool) {
	var b strings.Builder
	b.Grow(len(input) + 2)
	b.WriteByte('"')

	ascii := true
	for _, r := range input {
		switch {
		case r == '"' || r == '\\':
			b.WriteRune(r)
			b.WriteRune(r)
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		default:
			ascii = false
			if allow8Bit {
				b.WriteRune(r)
			} else {
				b.WriteByte('?')
			}
		}
	}

	b.WriteByte('"')
	return b.String(), ascii
}

// Check7BitText reports whether every character of input lies in the
// printable ASCII range [0x20,0x7e].
func Check7BitText(input string) bool {
	for i := 0; i < len(input); i++ {
		if input[i] < 0x20 || input[i] > 0x7e {
			return false
		}
	}
	return true
}

// StringArray splits text on runs of space characters, dropping empty
// tokens. An empty input yields nil, not an empty slice, so callers can
// tell "no value" apart from "a value with no tokens".
func StringArray(text string) []string {
	var out []string
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			if start >= 0 {
				out = append(out, text[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, text[start:])
	}
	return out
}
