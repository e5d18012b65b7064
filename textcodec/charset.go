package textcodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// ErrUnknownCharset is returned when a charset name resolves to no
// supported encoding.
var ErrUnknownCharset = errors.New("textcodec: unknown charset")

// DecoderCache holds the single most recently used charset decoder.
// Converting from the same charset twice in a row reuses (resets) the
// cached decoder; a different charset replaces it. The zero value is
// ready to use. A DecoderCache is not safe for concurrent use; give
// each goroutine its own cache or serialize access externally.
type DecoderCache struct {
	name    string
	decoder *encoding.Decoder
}

var (
	defaultCacheMu sync.Mutex
	defaultCache   DecoderCache
)

// Convert decodes rawText into Unicode text. When isBase64 is set the
// raw bytes are obtained by base64-decoding rawText; otherwise each
// character is copied verbatim except that '_' becomes a space (no =XY
// unescaping happens here, that is the RFC 2047 scanner's job). The
// charset name is trimmed and lowercased and defaults to iso-8859-1
// when empty; windows-NNNN names resolve to the matching code page.
// On any failure the error is returned and no output is produced.
func (c *DecoderCache) Convert(charset string, isBase64 bool, rawText string) (string, error) {
	var raw []byte
	if isBase64 {
		var err error
		raw, err = base64.StdEncoding.DecodeString(rawText)
		if err != nil {
			return "", fmt.Errorf("decode base64 text: %w", err)
		}
	} else {
		raw = make([]byte, len(rawText))
		for i := 0; i < len(rawText); i++ {
			b := rawText[i]
			if b == '_' {
				b = ' '
			}
			raw[i] = b
		}
	}

	name := normalizeCharset(charset)
	dec, err := c.lookup(name)
	if err != nil {
		return "", err
	}

	out, err := dec.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s text: %w", name, err)
	}
	return string(out), nil
}

// lookup returns a decoder for the normalized charset name, reusing the
// cached instance when the name is unchanged from the previous call.
func (c *DecoderCache) lookup(name string) (*encoding.Decoder, error) {
	if c.decoder != nil && c.name == name {
		c.decoder.Reset()
		return c.decoder, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		enc, err = ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
		}
	}

	c.name = name
	c.decoder = enc.NewDecoder()
	return c.decoder, nil
}

func normalizeCharset(charset string) string {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" {
		return "iso-8859-1"
	}
	return name
}

// ConvertToUnicode runs Convert on a process-wide cache guarded by a
// mutex. Call sites with their own conversion loops should own a
// DecoderCache instead of funneling through the shared one.
func ConvertToUnicode(charset string, isBase64 bool, rawText string) (string, error) {
	defaultCacheMu.Lock()
	defer defaultCacheMu.Unlock()
	return defaultCache.Convert(charset, isBase64, rawText)
}
