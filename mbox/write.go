package mbox

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/zimap/mboxarc/textcodec"
)

// WriteMail frames one message onto the open archive stream. The
// separator line "From <sender> <asctime>" is always written. In
// unquoted mode the body is framed by a Content-Length header and
// written as one opaque block. In quoted mode no length is written;
// instead every body line whose '>'-stripped form starts with "From "
// gets exactly one additional '>' prepended, so repeated read/write
// cycles add exactly one level per cycle. Flags, when present, travel
// in a private X-ZIMap-Flags header. WriteMail fails only on an I/O
// fault or a caller contract violation; framing itself is
// unconditional.
func (s *Store) WriteMail(sender string, date time.Time, flags string, header, body []byte, quoted bool) error {
	if s.file == nil {
		return ErrNotOpen
	}
	if strings.TrimSpace(sender) == "" {
		return fmt.Errorf("%w: empty sender", ErrArgument)
	}

	asc, err := textcodec.EncodeAscTime(date)
	if err != nil {
		return fmt.Errorf("encode separator date: %w", err)
	}

	var b bytes.Buffer
	b.Grow(len(header) + len(body) + 128)

	fmt.Fprintf(&b, "From %s %s\r\n", sender, asc)
	if !quoted {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	if flags != "" {
		fmt.Fprintf(&b, "X-ZIMap-Flags: %s\r\n", flags)
	}

	writeBlock(&b, header)
	b.WriteString("\r\n")
	if quoted {
		writeQuoted(&b, body)
	} else {
		writeBlock(&b, body)
	}

	if _, err := s.file.Write(b.Bytes()); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// writeBlock writes data, adding a line ending when data does not
// already end in one.
func writeBlock(b *bytes.Buffer, data []byte) {
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteString("\r\n")
	}
}

// writeQuoted writes the body line by line, applying From-quoting.
func writeQuoted(b *bytes.Buffer, body []byte) {
	if len(body) == 0 {
		return
	}
	terminated := body[len(body)-1] == '\n'

	for len(body) > 0 {
		var ln []byte
		if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
			ln = body[:idx+1]
			body = body[idx+1:]
		} else {
			ln = body
			body = nil
		}
		if bytes.HasPrefix(bytes.TrimLeft(ln, ">"), fromToken) {
			b.WriteByte('>')
		}
		b.Write(ln)
	}

	if !terminated {
		b.WriteString("\r\n")
	}
}
