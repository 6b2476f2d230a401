package workspace

import (
	"path/filepath"
	"time"
)

// MaxRecent bounds the recent files list.
const MaxRecent = 10

// RecentFile is one entry of the recent files list.
type RecentFile struct {
	Path       string
	Name       string
	LastOpened time.Time
}

// Recent is a most-recent-first list of opened or saved paths.
type Recent struct {
	files []RecentFile
}

// Add moves path to the front, inserting it when absent.
func (r *Recent) Add(path string, at time.Time) {
	r.Remove(path)
	r.files = append([]RecentFile{{Path: path, Name: filepath.Base(path), LastOpened: at}}, r.files...)
	if len(r.files) > MaxRecent {
		r.files = r.files[:MaxRecent]
	}
}

// Remove drops path from the list.
func (r *Recent) Remove(path string) {
	for i, f := range r.files {
		if f.Path == path {
			r.files = append(r.files[:i], r.files[i+1:]...)
			return
		}
	}
}

// Clear empties the list.
func (r *Recent) Clear() { r.files = nil }

// List returns a copy of the entries, most recent first.
func (r *Recent) List() []RecentFile {
	out := make([]RecentFile, len(r.files))
	copy(out, r.files)
	return out
}
