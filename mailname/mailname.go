// Package mailname maps Unicode mailbox names onto reversible,
// filesystem-safe file names. Unsafe characters are escaped as
// '_'-prefixed symbols over a 64-character alphabet; the hierarchy
// delimiter becomes "_~" and a non-zero archive version is appended as
// "_^" plus a symbol. Decode is a total inverse of every name Encode
// can produce.
package mailname

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Alphabet holds the 64 symbol characters: digits, upper case, lower
// case, '-' and '+'. A 16-bit value is written as 1-3 symbols in
// little-endian 6-bit groups.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-+"

// ErrBadName reports an encoded file name that no Encode call can have
// produced.
var ErrBadName = errors.New("mailname: malformed encoded name")

// MaxVersion is the largest version number a file name can carry: the
// version suffix holds one 16-bit value.
const MaxVersion = 0xffff

// Options controls which characters may appear verbatim in a file name.
type Options struct {
	// Excluded lists printable ASCII characters that must be escaped in
	// addition to '_' and the hierarchy delimiter, which always are.
	Excluded string
	// Allow8Bit keeps characters in [0xa0,0xff] verbatim instead of
	// escaping them.
	Allow8Bit bool
}

// DefaultOptions excludes the characters that are invalid in file names
// on at least one supported filesystem.
var DefaultOptions = Options{Excluded: `\/:*?"<>|`}

// Encode converts a mailbox name and version into a file name that is
// safe on any filesystem. Version 0 carries no suffix; versions above
// MaxVersion saturate at MaxVersion.
func Encode(name string, delim rune, version uint32, opts Options) string {
	var b strings.Builder
	b.Grow(len(name) + 8)

	for _, u := range utf16.Encode([]rune(name)) {
		switch {
		case rune(u) == delim:
			b.WriteString("_~")
		case safeChar(u, delim, opts):
			if u < 0x80 {
				b.WriteByte(byte(u))
			} else {
				b.WriteRune(rune(u))
			}
		default:
			b.WriteByte('_')
			appendSymbol(&b, u)
		}
	}

	if version != 0 {
		if version > MaxVersion {
			version = MaxVersion
		}
		b.WriteString("_^")
		appendSymbol(&b, uint16(version))
	}
	return b.String()
}

// Decode reverses Encode: "_~" becomes the delimiter, "_^" captures the
// version and every other '_'-led escape restores one 16-bit unit. All
// other characters copy verbatim.
func Decode(encoded string, delim rune, opts Options) (string, uint32, error) {
	_ = opts // verbatim characters decode independently of the options

	var units []uint16
	version := uint32(0)

	rs := []rune(encoded)
	i := 0
	for i < len(rs) {
		r := rs[i]
		if r != '_' {
			units = append(units, uint16(r))
			i++
			continue
		}
		i++
		if i >= len(rs) {
			return "", 0, fmt.Errorf("%w: dangling escape in %q", ErrBadName, encoded)
		}
		switch rs[i] {
		case '~':
			units = append(units, uint16(delim))
			i++
		case '^':
			i++
			v, n, err := readSymbol(rs[i:])
			if err != nil {
				return "", 0, fmt.Errorf("%w: bad version in %q", ErrBadName, encoded)
			}
			version = uint32(v)
			i += n
		default:
			v, n, err := readSymbol(rs[i:])
			if err != nil {
				return "", 0, fmt.Errorf("%w: bad escape in %q", ErrBadName, encoded)
			}
			units = append(units, v)
			i += n
		}
	}

	return string(utf16.Decode(units)), version, nil
}

// safeChar reports whether the UTF-16 unit may copy verbatim. The
// escape character '_' and the delimiter never may; neither do space
// and control characters. ASCII alphanumerics always may; ASCII
// punctuation passes unless excluded by the options; [0xa0,0xff]
// passes only with Allow8Bit.
func safeChar(u uint16, delim rune, opts Options) bool {
	switch {
	case u == '_' || rune(u) == delim:
		return false
	case u >= '0' && u <= '9', u >= 'A' && u <= 'Z', u >= 'a' && u <= 'z':
		return true
	case u <= 0x20:
		return false
	case u <= 0x7e:
		return !strings.ContainsRune(opts.Excluded, rune(u))
	case u >= 0xa0 && u <= 0xff:
		return opts.Allow8Bit
	default:
		return false
	}
}

// appendSymbol writes value as 1-3 alphabet symbols, low 6-bit group
// first, terminated by '_' unless the full 3-group form was needed
// (that form is self-delimiting by length).
func appendSymbol(b *strings.Builder, value uint16) {
	b.WriteByte(Alphabet[value&0x3f])
	if value >>= 6; value == 0 {
		b.WriteByte('_')
		return
	}
	b.WriteByte(Alphabet[value&0x3f])
	if value >>= 6; value == 0 {
		b.WriteByte('_')
		return
	}
	b.WriteByte(Alphabet[value&0x3f])
}

// readSymbol consumes one encoded symbol from rs, returning its value
// and the number of runes consumed including any '_' terminator.
func readSymbol(rs []rune) (uint16, int, error) {
	var v uint32
	n := 0
	for n < 3 && n < len(rs) {
		idx := symbolIndex(rs[n])
		if idx < 0 {
			break
		}
		v |= uint32(idx) << (6 * n)
		n++
	}
	if n == 0 {
		return 0, 0, errors.New("empty symbol")
	}
	if n < 3 {
		if n >= len(rs) || rs[n] != '_' {
			return 0, 0, errors.New("missing symbol terminator")
		}
		n++
	}
	return uint16(v), n, nil
}

func symbolIndex(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'A' && r <= 'Z':
		return int(r-'A') + 10
	case r >= 'a' && r <= 'z':
		return int(r-'a') + 36
	case r == '-':
		return 62
	case r == '+':
		return 63
	default:
		return -1
	}
}
