// Package filter selects which messages take part in a transfer based
// on regular expressions matched against header and body text.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// Options captures the filtering configuration. Include and exclude
// patterns are mutually exclusive.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

type mode int

const (
	modeOff mode = iota
	modeInclude
	modeExclude
)

// Filter holds the compiled patterns. A Filter is safe for concurrent
// use; matching allocates only when patterns for that part exist.
type Filter struct {
	mode   mode
	header []*regexp.Regexp
	body   []*regexp.Regexp
}

// New compiles the patterns from opts.
func New(opts Options) (*Filter, error) {
	includeActive := len(opts.IncludeHeader) > 0 || len(opts.IncludeBody) > 0
	excludeActive := len(opts.ExcludeHeader) > 0 || len(opts.ExcludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	f := &Filter{mode: modeOff}
	headerPatterns, bodyPatterns := opts.ExcludeHeader, opts.ExcludeBody
	if includeActive {
		f.mode = modeInclude
		headerPatterns, bodyPatterns = opts.IncludeHeader, opts.IncludeBody
	} else if excludeActive {
		f.mode = modeExclude
	}

	var err error
	if f.header, err = compilePatterns(headerPatterns); err != nil {
		return nil, fmt.Errorf("compile header pattern: %w", err)
	}
	if f.body, err = compilePatterns(bodyPatterns); err != nil {
		return nil, fmt.Errorf("compile body pattern: %w", err)
	}
	return f, nil
}

// Allows reports whether the message passes the filter. In include mode
// at least one pattern must match; in exclude mode no pattern may.
func (f *Filter) Allows(header, body []byte) bool {
	if f.mode == modeOff {
		return true
	}

	matched := matchAny(f.header, header) || matchAny(f.body, body)
	if f.mode == modeInclude {
		return matched
	}
	return !matched
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text []byte) bool {
	for _, re := range patterns {
		if re.Match(text) {
			return true
		}
	}
	return false
}
