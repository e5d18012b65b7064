package textcodec

import (
	"fmt"
	"strings"
)

// rfc2047State enumerates the scanner states for encoded-word parsing.
// The scanner walks COPY -> CHARSET -> ENCODING -> WORD and back to
// COPY at the closing "?=".
type rfc2047State int

const (
	rfc2047Copy rfc2047State = iota
	rfc2047Charset
	rfc2047Encoding
	rfc2047Word
)

// DecodeRfc2047 decodes all RFC 2047 encoded words ("=?charset?B|Q?data?=")
// embedded in rawText. Outside encoded words, '_' and control characters
// below 0x20 normalize to a single space and everything else is copied
// verbatim. The decode is all or nothing: a truncated encoded word or any
// charset/base64 failure returns the entire original string unchanged.
func (c *DecoderCache) DecodeRfc2047(rawText string) string {
	var (
		out      strings.Builder
		charset  string
		encByte  byte
		start    int
	)
	out.Grow(len(rawText))

	state := rfc2047Copy
	i := 0
	for i < len(rawText) {
		ch := rawText[i]
		switch state {
		case rfc2047Copy:
			if ch == '=' && i+1 < len(rawText) && rawText[i+1] == '?' {
				state = rfc2047Charset
				start = i + 2
				i += 2
				continue
			}
			if ch == '_' || ch < 0x20 {
				out.WriteByte(' ')
			} else {
				out.WriteByte(ch)
			}
			i++

		case rfc2047Charset:
			if ch == '?' {
				charset = rawText[start:i]
				state = rfc2047Encoding
				start = i + 1
			}
			i++

		case rfc2047Encoding:
			if ch == '?' {
				enc := rawText[start:i]
				switch {
				case strings.EqualFold(enc, "B"):
					encByte = 'B'
				case strings.EqualFold(enc, "Q"):
					encByte = 'Q'
				default:
					return rawText
				}
				state = rfc2047Word
				start = i + 1
			}
			i++

		case rfc2047Word:
			if ch == '?' && i+1 < len(rawText) && rawText[i+1] == '=' {
				decoded, err := c.convertWord(charset, encByte, rawText[start:i])
				if err != nil {
					return rawText
				}
				out.WriteString(decoded)
				state = rfc2047Copy
				i += 2
				continue
			}
			i++
		}
	}

	// Input ended inside an encoded word: verbatim passthrough.
	if state != rfc2047Copy {
		return rawText
	}
	return out.String()
}

// convertWord charset-converts the payload of one encoded word. For the
// Q variant =XY escapes are resolved to literal bytes first.
func (c *DecoderCache) convertWord(charset string, enc byte, word string) (string, error) {
	if enc == 'B' {
		return c.Convert(charset, true, word)
	}
	unescaped, err := unescapeQWord(word)
	if err != nil {
		return "", err
	}
	return c.Convert(charset, false, unescaped)
}

func unescapeQWord(word string) (string, error) {
	var b strings.Builder
	b.Grow(len(word))
	for i := 0; i < len(word); i++ {
		ch := word[i]
		if ch != '=' {
			b.WriteByte(ch)
			continue
		}
		if i+2 >= len(word) {
			return "", fmt.Errorf("truncated =XY escape in %q", word)
		}
		hi, ok1 := hexValue(word[i+1])
		lo, ok2 := hexValue(word[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("bad =XY escape in %q", word)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	}
	return 0, false
}

// DecodeRfc2047Text decodes encoded words using the process-wide
// decoder cache.
func DecodeRfc2047Text(rawText string) string {
	defaultCacheMu.Lock()
	defer defaultCacheMu.Unlock()
	return defaultCache.DecodeRfc2047(rawText)
}
