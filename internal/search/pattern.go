// Package search finds and replaces text in the active session.
package search

import (
	"errors"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single regex evaluation.
const DefaultMatchTimeout = time.Second

// ErrEmptyQuery is returned by Compile for an empty query.
var ErrEmptyQuery = errors.New("empty query")

// Options are the search parameters.
type Options struct {
	CaseSensitive bool
	UseRegex      bool
	WholeWord     bool
}

// Match is one occurrence. Start and End are rune offsets into the content
// the match set was built from.
type Match struct {
	Ordinal int
	Start   int
	End     int
	Text    string
}

const metaChars = `.*+?^${}()|[]\`

// Escape quotes every regex metacharacter in s.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(metaChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Compile builds the pattern for query. A literal query is escaped first and
// whole-word wraps the pattern in word boundaries.
func Compile(query string, opts Options, timeout time.Duration) (*regexp2.Regexp, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	pattern := query
	if !opts.UseRegex {
		pattern = Escape(query)
	}
	if opts.WholeWord {
		pattern = `\b` + pattern + `\b`
	}

	flags := regexp2.RegexOptions(regexp2.ECMAScript)
	if !opts.CaseSensitive {
		flags |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(pattern, flags)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultMatchTimeout
	}
	re.MatchTimeout = timeout
	return re, nil
}

// Scan returns every non-overlapping match of re in content, left to right.
// A zero-width match advances the scan by one rune.
func Scan(re *regexp2.Regexp, content string) ([]Match, error) {
	if content == "" {
		return nil, nil
	}
	runes := []rune(content)
	var out []Match
	for pos := 0; pos <= len(runes); {
		m, err := re.FindRunesMatchStartingAt(runes, pos)
		if err != nil {
			return nil, err
		}
		if m == nil {
			break
		}
		start, end := m.Index, m.Index+m.Length
		out = append(out, Match{Ordinal: len(out), Start: start, End: end, Text: m.String()})
		if end > start {
			pos = end
		} else {
			pos = end + 1
		}
	}
	return out, nil
}

// Find compiles query and scans content. Invalid patterns and timeouts are
// returned as errors; callers that want "no matches" semantics ignore them.
func Find(content, query string, opts Options, timeout time.Duration) ([]Match, error) {
	re, err := Compile(query, opts, timeout)
	if err != nil {
		return nil, err
	}
	return Scan(re, content)
}

// Splice replaces the rune range [start, end) of content with replacement.
func Splice(content string, start, end int, replacement string) string {
	runes := []rune(content)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start > end {
		start = end
	}
	return string(runes[:start]) + replacement + string(runes[end:])
}

// substitution turns replacement into regexp2 replacement syntax. Group
// references only expand in regex mode.
func substitution(replacement string, opts Options) string {
	if opts.UseRegex {
		return replacement
	}
	return strings.ReplaceAll(replacement, "$", "$$")
}
