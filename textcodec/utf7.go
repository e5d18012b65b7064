package textcodec

import (
	"strings"
	"unicode/utf16"
)

// modifiedBase64 is the RFC 3501 variant of the base64 alphabet, with
// ',' in place of '/'.
const modifiedBase64 = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

// maxShiftRun is the number of UTF-16 units flushed per '&'...'-' shift
// sequence (8 sextets of payload).
const maxShiftRun = 3

// MailboxEncode converts a Unicode mailbox name to RFC 3501 modified
// UTF-7. Printable ASCII copies verbatim, '&' becomes "&-", and every
// run of up to three consecutive code units outside [0x20,0x7e] is
// flushed as one '&'-prefixed modified-base64 sequence terminated by
// '-', with trailing all-zero sextets stripped. The bool reports
// whether any escaping took place; when it is false the input is
// returned as-is.
func MailboxEncode(input string) (string, bool) {
	units := utf16.Encode([]rune(input))

	prefix := 0
	for prefix < len(units) {
		u := units[prefix]
		if u < 0x20 || u == '&' || u > 0x7e {
			break
		}
		prefix++
	}
	if prefix == len(units) {
		return input, false
	}

	var b strings.Builder
	b.Grow(len(input) + 8)
	for _, u := range units[:prefix] {
		b.WriteByte(byte(u))
	}

	i := prefix
	for i < len(units) {
		u := units[i]
		switch {
		case u == '&':
			b.WriteString("&-")
			i++
		case u >= 0x20 && u <= 0x7e:
			b.WriteByte(byte(u))
			i++
		default:
			n := 0
			for i+n < len(units) && n < maxShiftRun {
				next := units[i+n]
				if next >= 0x20 && next <= 0x7e {
					break
				}
				n++
			}
			flushShift(&b, units[i:i+n])
			i += n
		}
	}
	return b.String(), true
}

// flushShift emits one shift sequence for a run of 1 to 3 UTF-16 units.
// The units are packed big-endian into a 48-bit group; trailing sextets
// that carry only zero bits are dropped before the '-' terminator.
func flushShift(b *strings.Builder, run []uint16) {
	var bits uint64
	for k := 0; k < maxShiftRun; k++ {
		var u uint16
		if k < len(run) {
			u = run[k]
		}
		bits = bits<<16 | uint64(u)
	}

	last := 8
	for last > 0 && (bits>>(42-6*(last-1)))&0x3f == 0 {
		last--
	}

	b.WriteByte('&')
	for k := 0; k < last; k++ {
		b.WriteByte(modifiedBase64[(bits>>(42-6*k))&0x3f])
	}
	b.WriteByte('-')
}

// MailboxDecode is the inverse of MailboxEncode: "&-" becomes a literal
// '&' and every other '&'-prefixed sequence is decoded as modified
// base64 until its '-' terminator, reassembling up to three 16-bit
// units from up to eight sextets and stopping a group early when a
// reassembled unit is zero. Malformed input (a missing terminator, a
// byte outside the alphabet, an overlong group) returns the input
// unchanged with changed=false.
func MailboxDecode(text string) (string, bool) {
	if !strings.Contains(text, "&") {
		return text, false
	}

	var units []uint16
	i := 0
	for i < len(text) {
		ch := text[i]
		if ch != '&' {
			units = append(units, uint16(ch))
			i++
			continue
		}
		if i+1 < len(text) && text[i+1] == '-' {
			units = append(units, '&')
			i += 2
			continue
		}

		var bits uint64
		m := 0
		j := i + 1
		for j < len(text) && text[j] != '-' {
			v := strings.IndexByte(modifiedBase64, text[j])
			if v < 0 || m >= 8 {
				return text, false
			}
			bits |= uint64(v) << (42 - 6*m)
			m++
			j++
		}
		if j >= len(text) || m == 0 {
			return text, false
		}

		for k := 0; k < maxShiftRun; k++ {
			u := uint16(bits >> (32 - 16*k))
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		i = j + 1
	}

	return string(utf16.Decode(units)), true
}
