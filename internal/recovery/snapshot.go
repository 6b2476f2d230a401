// Package recovery keeps a periodic backup of unsaved sessions and offers it
// back after a crash.
package recovery

import (
	"time"

	"github.com/fakeyudi/inkwell/internal/session"
)

// Tab is one session as persisted in a Snapshot.
type Tab struct {
	ID        string  `json:"id"`
	FileName  string  `json:"fileName"`
	FilePath  *string `json:"filePath"`
	Content   string  `json:"content"`
	IsDirty   bool    `json:"isDirty"`
	FileType  string  `json:"fileType"`
	Extension *string `json:"extension"`
}

// Snapshot is the on-disk recovery artifact. Timestamp is in Unix
// milliseconds.
type Snapshot struct {
	Timestamp   int64   `json:"timestamp"`
	ActiveTabID *string `json:"activeTabId"`
	Tabs        []Tab   `json:"tabs"`
}

// Time returns the capture time.
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Age returns how old the snapshot is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Time())
}

// DirtyTabs returns the tabs that had unsaved changes.
func (s *Snapshot) DirtyTabs() []Tab {
	var out []Tab
	for _, t := range s.Tabs {
		if t.IsDirty {
			out = append(out, t)
		}
	}
	return out
}

// Capture serializes every session in reg, clean ones included, so the
// restored workspace looks the same.
func Capture(reg *session.Registry, now time.Time) *Snapshot {
	snap := &Snapshot{
		Timestamp: now.UnixMilli(),
		Tabs:      make([]Tab, 0, reg.Len()),
	}
	if id := reg.ActiveID(); id != "" {
		active := string(id)
		snap.ActiveTabID = &active
	}
	for _, s := range reg.Sessions() {
		snap.Tabs = append(snap.Tabs, Tab{
			ID:        string(s.ID()),
			FileName:  s.DisplayName(),
			FilePath:  optional(s.Path()),
			Content:   s.Content(),
			IsDirty:   s.Dirty(),
			FileType:  string(s.Kind()),
			Extension: optional(s.Extension()),
		})
	}
	return snap
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
