package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractionPattern pulls a candidate game nickname out of a voice nickname
// through its first capture group.
type ExtractionPattern struct {
	source string
	re     *regexp.Regexp
	err    error
}

// CompilePattern never fails: a pattern that does not compile or has no
// capture group becomes a pattern that never matches, with Err set.
func CompilePattern(source string) ExtractionPattern {
	p := ExtractionPattern{source: source}
	// Validate the source on its own so stray parens cannot escape the
	// anchoring group below.
	bare, err := regexp.Compile(`(?i)` + source)
	if err != nil {
		p.err = fmt.Errorf("compile %q: %w", source, err)
		return p
	}
	if bare.NumSubexp() < 1 {
		p.err = fmt.Errorf("pattern %q has no capture group", source)
		return p
	}
	// prefix match, case-insensitive
	re, err := regexp.Compile(`(?i)^(?:` + source + `)`)
	if err != nil || re.NumSubexp() != bare.NumSubexp() {
		p.err = fmt.Errorf("pattern %q cannot be anchored", source)
		return p
	}
	p.re = re
	return p
}

func (p ExtractionPattern) String() string { return p.source }

// Err reports why the pattern can never match, or nil.
func (p ExtractionPattern) Err() error { return p.err }

// Extract returns the trimmed first capture group. ok is false when the
// pattern does not match or the capture is blank.
func (p ExtractionPattern) Extract(nickname string) (string, bool) {
	if p.re == nil {
		return "", false
	}
	m := p.re.FindStringSubmatch(nickname)
	if len(m) < 2 {
		return "", false
	}
	captured := strings.TrimSpace(m[1])
	if captured == "" {
		return "", false
	}
	return captured, true
}

// PatternSet is an ordered, immutable list of extraction patterns.
type PatternSet struct {
	patterns []ExtractionPattern
}

func CompilePatterns(sources []string) *PatternSet {
	set := &PatternSet{patterns: make([]ExtractionPattern, 0, len(sources))}
	for _, s := range sources {
		if strings.TrimSpace(s) == "" {
			continue
		}
		set.patterns = append(set.patterns, CompilePattern(s))
	}
	return set
}

func (s *PatternSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Patterns returns a copy of the set in order.
func (s *PatternSet) Patterns() []ExtractionPattern {
	if s == nil {
		return nil
	}
	return append([]ExtractionPattern(nil), s.patterns...)
}

// Problems lists the compile errors of never-matching patterns.
func (s *PatternSet) Problems() []error {
	if s == nil {
		return nil
	}
	var out []error
	for _, p := range s.patterns {
		if p.err != nil {
			out = append(out, p.err)
		}
	}
	return out
}
