package session

import (
	"github.com/google/uuid"

	"github.com/fakeyudi/inkwell/internal/pubsub"
)

// ChangeKind classifies a Change notification.
type ChangeKind int

const (
	Created ChangeKind = iota
	Closed
	Activated
	ContentChanged
	Saved
	KindChanged
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Closed:
		return "closed"
	case Activated:
		return "activated"
	case ContentChanged:
		return "content-changed"
	case Saved:
		return "saved"
	case KindChanged:
		return "kind-changed"
	}
	return "unknown"
}

// Change is published by the Registry after every successful mutation.
type Change struct {
	Kind ChangeKind
	ID   ID
	// Active is the active session id after the change.
	Active ID
}

// CreateOptions configures a new Session. Every field is optional.
type CreateOptions struct {
	Content string
	// Path binds the session to durable storage.
	Path string
	// DisplayName defaults to the base name of Path, or UntitledName.
	DisplayName string
	// Dirty starts the session dirty even though content equals the
	// baseline (new empty documents, recovered documents).
	Dirty bool
	// New defaults to true when Path is empty.
	New *bool
	// Kind defaults to KindFor(DisplayName).
	Kind Kind
}

// Registry owns the ordered list of open sessions and the active pointer.
// It is not safe for concurrent use: all calls happen on the event loop.
type Registry struct {
	sessions []*Session
	active   ID
	changes  pubsub.Topic[Change]
	newID    func() ID
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		newID: func() ID { return ID(uuid.New().String()) },
	}
}

// Subscribe registers fn for change notifications.
func (r *Registry) Subscribe(fn func(Change)) (unsubscribe func()) {
	return r.changes.Subscribe(fn)
}

func (r *Registry) publish(kind ChangeKind, id ID) {
	r.changes.Publish(Change{Kind: kind, ID: id, Active: r.active})
}

// Create appends a new session, makes it active and returns its id.
func (r *Registry) Create(opts CreateOptions) ID {
	name := opts.DisplayName
	if name == "" {
		name = DisplayNameFor(opts.Path)
	}
	isNew := opts.Path == ""
	if opts.New != nil {
		isNew = *opts.New
	}
	kind := opts.Kind
	if kind == "" {
		kind = KindFor(name)
	}

	s := &Session{
		id:          r.newID(),
		displayName: name,
		path:        opts.Path,
		content:     opts.Content,
		baseline:    opts.Content,
		isNew:       isNew,
		kind:        kind,
		extension:   Extension(name),
		forceDirty:  opts.Dirty,
	}
	r.sessions = append(r.sessions, s)
	r.active = s.id

	r.publish(Created, s.id)
	return s.id
}

// Close removes the session. When it was active, the session now occupying
// its index (or the new last one) becomes active. Unknown ids return false.
func (r *Registry) Close(id ID) bool {
	i := r.Index(id)
	if i < 0 {
		return false
	}
	r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)

	if r.active == id {
		if len(r.sessions) == 0 {
			r.active = ""
		} else {
			r.active = r.sessions[min(i, len(r.sessions)-1)].id
		}
	}

	r.publish(Closed, id)
	return true
}

// Activate makes id the active session.
func (r *Registry) Activate(id ID) bool {
	if r.Get(id) == nil {
		return false
	}
	r.active = id
	r.publish(Activated, id)
	return true
}

// MutateContent replaces the session's content. Dirty is recomputed from the
// baseline comparison.
func (r *Registry) MutateContent(id ID, content string) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	if s.content == content {
		return true
	}
	s.setContent(content)
	r.publish(ContentChanged, id)
	return true
}

// ReplaceContent loads content as if freshly read from storage: both the
// content and the baseline are replaced, leaving the session clean.
func (r *Registry) ReplaceContent(id ID, content string) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	s.setContent(content)
	s.baseline = content
	r.publish(ContentChanged, id)
	return true
}

// MarkSaved records that the current content reached storage. Empty path or
// displayName keep the current values.
func (r *Registry) MarkSaved(id ID, path, displayName string) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	return r.MarkSavedContent(id, s.content, path, displayName)
}

// MarkSavedContent records that saved reached storage. Content typed while
// the write was in flight stays dirty.
func (r *Registry) MarkSavedContent(id ID, saved, path, displayName string) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	s.markSaved(saved, path, displayName)
	r.publish(Saved, id)
	return true
}

// SetKind reassigns the rendering kind.
func (r *Registry) SetKind(id ID, kind Kind) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	if s.kind == kind {
		return true
	}
	s.kind = kind
	r.publish(KindChanged, id)
	return true
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id ID) *Session {
	if id == "" {
		return nil
	}
	for _, s := range r.sessions {
		if s.id == id {
			return s
		}
	}
	return nil
}

// Index returns the tab position of id, or -1.
func (r *Registry) Index(id ID) int {
	for i, s := range r.sessions {
		if s.id == id {
			return i
		}
	}
	return -1
}

// At returns the session at tab position i, or nil.
func (r *Registry) At(i int) *Session {
	if i < 0 || i >= len(r.sessions) {
		return nil
	}
	return r.sessions[i]
}

// ActiveID returns the active session id, or "" when the registry is empty.
func (r *Registry) ActiveID() ID {
	return r.active
}

// Active returns the active session, or nil.
func (r *Registry) Active() *Session {
	return r.Get(r.active)
}

// Sessions returns the sessions in tab order. The slice is a copy.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// FindByPath returns the session bound to path, or nil.
func (r *Registry) FindByPath(path string) *Session {
	if path == "" {
		return nil
	}
	for _, s := range r.sessions {
		if s.path == path {
			return s
		}
	}
	return nil
}

// AnyDirty reports whether at least one session has unsaved changes.
func (r *Registry) AnyDirty() bool {
	for _, s := range r.sessions {
		if s.Dirty() {
			return true
		}
	}
	return false
}

// DirtySessions returns the sessions with unsaved changes in tab order.
func (r *Registry) DirtySessions() []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.Dirty() {
			out = append(out, s)
		}
	}
	return out
}
