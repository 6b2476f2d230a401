package search

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/fakeyudi/inkwell/internal/pubsub"
	"github.com/fakeyudi/inkwell/internal/session"
)

// Counts is published whenever the match set or the active ordinal changes.
type Counts struct {
	Total  int
	Active int
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// MatchTimeout bounds every regex evaluation. Zero means
	// DefaultMatchTimeout.
	MatchTimeout time.Duration
	Logger       *slog.Logger
}

// Engine holds the search state for one registry. It follows the active
// session: match sets are rebuilt when its content changes or another
// session becomes active. Methods must be called on the event loop.
type Engine struct {
	reg     *session.Registry
	log     *slog.Logger
	timeout time.Duration

	query   string
	opts    Options
	re      *regexp2.Regexp
	matches []Match
	active  int

	// applying suppresses rebuilds triggered by the engine's own mutations.
	applying    bool
	unsubscribe func()

	Counts pubsub.Topic[Counts]
}

// NewEngine returns an Engine subscribed to reg.
func NewEngine(reg *session.Registry, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		reg:     reg,
		log:     logger.With("component", "search"),
		timeout: opts.MatchTimeout,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultMatchTimeout
	}
	e.unsubscribe = reg.Subscribe(e.onChange)
	return e
}

func (e *Engine) onChange(c session.Change) {
	if e.applying || e.re == nil {
		return
	}
	switch c.Kind {
	case session.Created, session.Activated, session.Closed:
		e.active = 0
		e.rebuild()
	case session.ContentChanged:
		if c.ID == c.Active {
			e.rebuild()
		}
	}
}

// Search replaces the query and options and rebuilds the match set against
// the active session. An empty query or an invalid pattern yields no matches.
func (e *Engine) Search(query string, opts Options) []Match {
	e.query = query
	e.opts = opts
	e.active = 0
	e.re = nil

	re, err := Compile(query, opts, e.timeout)
	switch {
	case errors.Is(err, ErrEmptyQuery):
	case err != nil:
		e.log.Debug("invalid pattern", "query", query, "err", err)
	default:
		e.re = re
	}
	e.rebuild()
	return e.Matches()
}

// rebuild rescans the active session. The ordinal is kept when still valid.
func (e *Engine) rebuild() {
	e.matches = nil
	if s := e.reg.Active(); s != nil && e.re != nil {
		matches, err := Scan(e.re, s.Content())
		if err != nil {
			e.log.Warn("search aborted", "query", e.query, "err", err)
		} else {
			e.matches = matches
		}
	}
	if e.active >= len(e.matches) {
		e.active = 0
	}
	e.publish()
}

func (e *Engine) publish() {
	e.Counts.Publish(Counts{Total: len(e.matches), Active: e.active})
}

// Query returns the current query.
func (e *Engine) Query() string { return e.query }

// Options returns the current search options.
func (e *Engine) Options() Options { return e.opts }

// Matches returns a copy of the current match set.
func (e *Engine) Matches() []Match {
	out := make([]Match, len(e.matches))
	copy(out, e.matches)
	return out
}

// ActiveOrdinal returns the index of the active match. It is 0 when there are
// no matches.
func (e *Engine) ActiveOrdinal() int { return e.active }

// ActiveMatch returns the active match.
func (e *Engine) ActiveMatch() (Match, bool) {
	if len(e.matches) == 0 {
		return Match{}, false
	}
	return e.matches[e.active], true
}

// Next moves to the following match, wrapping at the end.
func (e *Engine) Next() {
	if len(e.matches) == 0 {
		return
	}
	e.active = (e.active + 1) % len(e.matches)
	e.publish()
}

// Previous moves to the preceding match, wrapping at the start.
func (e *Engine) Previous() {
	if len(e.matches) == 0 {
		return
	}
	e.active = (e.active - 1 + len(e.matches)) % len(e.matches)
	e.publish()
}

// ReplaceActive splices replacement literally over the active match and
// searches again from the first match. It reports whether a replacement
// happened.
func (e *Engine) ReplaceActive(replacement string) bool {
	s := e.reg.Active()
	m, ok := e.ActiveMatch()
	if s == nil || !ok {
		return false
	}
	updated := Splice(s.Content(), m.Start, m.End, replacement)

	e.applying = true
	e.reg.MutateContent(s.ID(), updated)
	e.applying = false

	e.active = 0
	e.rebuild()
	return true
}

// ReplaceAll substitutes every match in one mutation and clears the match
// set. It returns the number of replacements.
func (e *Engine) ReplaceAll(replacement string) int {
	s := e.reg.Active()
	if s == nil || e.re == nil {
		return 0
	}
	content := s.Content()
	matches, err := Scan(e.re, content)
	if err != nil {
		e.log.Warn("replace all aborted", "query", e.query, "err", err)
		return 0
	}
	if len(matches) == 0 {
		return 0
	}
	updated, err := e.re.Replace(content, substitution(replacement, e.opts), -1, -1)
	if err != nil {
		e.log.Warn("replace all aborted", "query", e.query, "err", err)
		return 0
	}

	e.applying = true
	e.reg.MutateContent(s.ID(), updated)
	e.applying = false

	e.matches = nil
	e.active = 0
	e.publish()
	return len(matches)
}

// Reset clears the query and the match set.
func (e *Engine) Reset() {
	e.query = ""
	e.opts = Options{}
	e.re = nil
	e.matches = nil
	e.active = 0
	e.publish()
}

// Close detaches the engine from the registry.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}
