package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSnapshot is returned by Read when no recovery file exists on disk.
var ErrNoSnapshot = errors.New("no recovery snapshot")

// ErrCorruptSnapshot is returned by Read when the file cannot be parsed.
var ErrCorruptSnapshot = errors.New("corrupt recovery snapshot")

// Store persists a single Snapshot.
type Store interface {
	Exists() (bool, error)
	Read() (*Snapshot, error) // returns ErrNoSnapshot if none exists
	Write(s *Snapshot) error
	Delete() error
}

// diskStore is the concrete Store that writes to the XDG data directory.
type diskStore struct {
	path string // full path to recovery.json
}

// NewDiskStore returns a Store backed by path. An empty path selects
// $XDG_DATA_HOME/inkwell/recovery.json or ~/.local/share/inkwell/recovery.json.
func NewDiskStore(path string) (Store, error) {
	if path == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		path = filepath.Join(dir, "recovery.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: path}, nil
}

// DefaultPath returns where NewDiskStore("") keeps the snapshot.
func DefaultPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "recovery.json"), nil
}

// dataDir returns the inkwell-specific XDG data directory.
func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "inkwell"), nil
}

func (d *diskStore) Exists() (bool, error) {
	_, err := os.Stat(d.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat recovery snapshot: %w", err)
	}
}

// Write marshals s to JSON and writes it atomically via a temp file + os.Rename,
// overwriting any earlier snapshot.
func (d *diskStore) Write(s *Snapshot) (err error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to persist recovery snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "recovery-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist recovery snapshot: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist recovery snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist recovery snapshot: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist recovery snapshot: %w", err)
	}
	return nil
}

// Read loads the snapshot. A missing file yields ErrNoSnapshot and an
// unparseable one ErrCorruptSnapshot.
func (d *diskStore) Read() (*Snapshot, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read recovery snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return &s, nil
}

// Delete removes the snapshot file. A missing file is not an error.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete recovery snapshot: %w", err)
	}
	return nil
}
