// Package session holds the in-memory model of open documents: one Session
// per tab and the Registry that orders them and tracks the active one.
package session

import (
	"path/filepath"
	"strings"
)

// ID identifies a Session for its whole lifetime.
type ID string

// UntitledName is the display name given to documents without a backing path.
const UntitledName = "Untitled"

// Kind tells the editing surface how to render a document.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
)

// Session is one open document. Fields are only changed through the Registry
// so that Dirty always reflects the content/baseline comparison.
type Session struct {
	id          ID
	displayName string
	path        string
	content     string
	baseline    string
	isNew       bool
	kind        Kind
	extension   string

	// forceDirty marks a document dirty even though content equals the
	// baseline. Only creation sets it; the next mutation or save clears it.
	forceDirty bool
}

func (s *Session) ID() ID              { return s.id }
func (s *Session) DisplayName() string { return s.displayName }

// Path returns the backing path, or "" for a document that was never saved.
func (s *Session) Path() string { return s.path }

func (s *Session) Content() string  { return s.content }
func (s *Session) Baseline() string { return s.baseline }
func (s *Session) New() bool        { return s.isNew }
func (s *Session) Kind() Kind       { return s.kind }

// Extension is the lower-cased extension of the display name at creation,
// without the dot.
func (s *Session) Extension() string { return s.extension }

// Dirty reports whether the content differs from the last saved baseline.
func (s *Session) Dirty() bool {
	return s.forceDirty || s.content != s.baseline
}

func (s *Session) setContent(content string) {
	s.content = content
	s.forceDirty = false
}

func (s *Session) markSaved(saved, path, displayName string) {
	s.baseline = saved
	s.forceDirty = false
	s.isNew = false
	if path != "" {
		s.path = path
	}
	if displayName != "" {
		s.displayName = displayName
	}
}

// Extension returns the lower-cased extension of name without the dot, or ""
// when name has none.
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindFor derives the rendering kind from a file name.
func KindFor(name string) Kind {
	switch Extension(name) {
	case "md", "markdown":
		return KindMarkdown
	default:
		return KindText
	}
}

// DisplayNameFor returns the base name of path, or UntitledName when path is
// empty.
func DisplayNameFor(path string) string {
	if path == "" {
		return UntitledName
	}
	return filepath.Base(path)
}
