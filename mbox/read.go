package mbox

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zimap/mboxarc/textcodec"
)

// Message is one message extracted from an archive: the concatenated
// header, blank line and body bytes, the send date from the From line,
// the flags captured from the private X-ZIMap-Flags header (empty when
// the message carried none), and the buffer offset after the read.
type Message struct {
	Raw    []byte
	Date   time.Time
	Flags  string
	Offset int64
}

var fromToken = []byte("From ")

// readState tags the phases of message extraction. Each state has one
// step method; the outer loop runs steps until stateReadMail.
type readState int

const (
	stateSearchFrom readState = iota
	stateSearchLength
	stateReadHeader
	stateReadMail
)

// line is one buffer line. text excludes the line ending, raw includes
// it; terminated is false only for an unterminated final line.
type line struct {
	text       []byte
	raw        []byte
	terminated bool
}

// mailParser extracts one message from a pre-loaded byte buffer.
type mailParser struct {
	buf    []byte
	pos    int
	out    bytes.Buffer
	date   time.Time
	flags  string
	length int // Content-Length; -1 when not captured
	inBody bool
}

func newMailParser(buf []byte, pos int) *mailParser {
	return &mailParser{buf: buf, pos: pos, length: -1}
}

// ReadMail extracts the next message from the loaded buffer. Reaching
// the end of the buffer before a message is complete yields
// ErrNoMessage and leaves the cursor unchanged.
func (s *Store) ReadMail() (*Message, error) {
	if s.buf == nil {
		return nil, ErrNotOpen
	}
	p := newMailParser(s.buf, s.off)
	msg, err := p.run()
	if err != nil {
		return nil, err
	}
	s.off = p.pos
	return msg, nil
}

func (p *mailParser) run() (*Message, error) {
	state := stateSearchFrom
	for state != stateReadMail {
		next, err := p.step(state)
		if err != nil {
			return nil, err
		}
		state = next
	}
	raw := append([]byte(nil), p.out.Bytes()...)
	return &Message{Raw: raw, Date: p.date, Flags: p.flags, Offset: int64(p.pos)}, nil
}

func (p *mailParser) step(state readState) (readState, error) {
	switch state {
	case stateSearchFrom:
		return p.stepSearchFrom()
	case stateSearchLength:
		return p.stepSearchLength()
	case stateReadHeader:
		return p.stepReadHeader()
	default:
		return state, fmt.Errorf("mbox: invalid parser state %d", state)
	}
}

// stepSearchFrom scans for the next message separator line. The date
// token after the sender address is parsed leniently: a separator with
// an unreadable date still frames a message.
func (p *mailParser) stepSearchFrom() (readState, error) {
	ln, ok := p.nextLine()
	if !ok {
		return stateSearchFrom, ErrNoMessage
	}
	if !bytes.HasPrefix(ln.text, fromToken) {
		return stateSearchFrom, nil
	}
	rest := ln.text[len(fromToken):]
	if sp := bytes.IndexByte(rest, ' '); sp >= 0 {
		if t, err := decodeFromDate(string(rest[sp+1:])); err == nil {
			p.date = t
		}
	}
	return stateSearchLength, nil
}

// stepSearchLength inspects the one line after the separator. A
// Content-Length header is captured and dropped; any other line is
// handed to the header processing unchanged, so no byte is lost.
func (p *mailParser) stepSearchLength() (readState, error) {
	ln, ok := p.nextLine()
	if !ok {
		return stateSearchLength, ErrNoMessage
	}
	if v, ok := headerValue(ln.text, "Content-Length:"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			p.length = n
		}
		return stateReadHeader, nil
	}
	return p.headerLine(ln)
}

func (p *mailParser) stepReadHeader() (readState, error) {
	if p.inBody {
		return p.bodyLine()
	}
	ln, ok := p.nextLine()
	if !ok {
		return stateReadHeader, ErrNoMessage
	}
	return p.headerLine(ln)
}

// headerLine copies one header line to the output, capturing the
// private flags header and dropping all other X- headers. A blank line
// ends the headers: with a captured Content-Length the body is sliced
// as exactly that many bytes regardless of embedded line breaks,
// otherwise body lines accumulate until the buffer ends or the next
// separator appears.
func (p *mailParser) headerLine(ln line) (readState, error) {
	if len(ln.text) == 0 {
		p.out.Write(ln.raw)
		if p.length >= 0 {
			n := p.length
			if remain := len(p.buf) - p.pos; n > remain {
				n = remain
			}
			p.out.Write(p.buf[p.pos : p.pos+n])
			p.pos += n
			return stateReadMail, nil
		}
		p.inBody = true
		return stateReadHeader, nil
	}

	if v, ok := headerValue(ln.text, "X-ZIMap-Flags:"); ok {
		p.flags = strings.TrimSpace(v)
		return stateReadHeader, nil
	}
	if len(ln.text) >= 2 && (ln.text[0] == 'X' || ln.text[0] == 'x') && ln.text[1] == '-' {
		return stateReadHeader, nil // private headers are never replayed
	}

	p.out.Write(ln.raw)
	return stateReadHeader, nil
}

// bodyLine accumulates one body line when no Content-Length framed the
// message. The next separator line is left in the buffer for the next
// call; an unterminated final line is also left behind, so a truncated
// archive tail is re-read instead of silently swallowed.
func (p *mailParser) bodyLine() (readState, error) {
	start := p.pos
	ln, ok := p.nextLine()
	if !ok {
		return stateReadMail, nil
	}
	if bytes.HasPrefix(ln.text, fromToken) {
		p.pos = start
		return stateReadMail, nil
	}
	if !ln.terminated {
		p.pos = start
		return stateReadMail, nil
	}
	p.out.Write(ln.raw)
	return stateReadHeader, nil
}

func (p *mailParser) nextLine() (line, bool) {
	if p.pos >= len(p.buf) {
		return line{}, false
	}
	rest := p.buf[p.pos:]
	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		p.pos = len(p.buf)
		return line{text: rest, raw: rest, terminated: false}, true
	}

	raw := rest[:idx+1]
	text := raw[:len(raw)-1]
	if len(text) > 0 && text[len(text)-1] == '\r' {
		text = text[:len(text)-1]
	}
	p.pos += idx + 1
	return line{text: text, raw: raw, terminated: true}, true
}

// headerValue matches a header name case-insensitively and returns the
// raw remainder of the line.
func headerValue(text []byte, name string) (string, bool) {
	if len(text) < len(name) {
		return "", false
	}
	if !strings.EqualFold(string(text[:len(name)]), name) {
		return "", false
	}
	return string(text[len(name):]), true
}

// decodeFromDate accepts both the asctime form mbox prescribes and the
// IMAP date-time form some exporters put on the separator line.
func decodeFromDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := textcodec.DecodeAscTime(text); err == nil {
		return t, nil
	}
	return textcodec.DecodeIMapTime(text)
}
