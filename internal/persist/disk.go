package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileError describes a failed document read or write.
type FileError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the error is caused by a missing file.
func (e *FileError) NotFound() bool {
	return errors.Is(e.Err, os.ErrNotExist)
}

// Disk implements Documents on the local filesystem.
type Disk struct {
	// Perm is used when a document is created. Zero means 0o644.
	Perm os.FileMode
}

// ReadDocument returns the file's text.
func (d Disk) ReadDocument(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FileError{Op: "read", Path: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileError{Op: "read", Path: path, Err: err}
	}
	return string(data), nil
}

// WriteDocument replaces the file atomically via a temp file + os.Rename in
// the same directory. An existing file keeps its permissions.
func (d Disk) WriteDocument(ctx context.Context, path, content string) (err error) {
	if err := ctx.Err(); err != nil {
		return &FileError{Op: "write", Path: path, Err: err}
	}
	wrap := func(e error) error { return &FileError{Op: "write", Path: path, Err: e} }

	perm := d.Perm
	if perm == 0 {
		perm = 0o644
	}
	if info, statErr := os.Stat(path); statErr == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return wrap(err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.WriteString(content); err != nil {
		tmp.Close()
		return wrap(err)
	}
	if err = tmp.Chmod(perm); err != nil {
		tmp.Close()
		return wrap(err)
	}
	if err = tmp.Close(); err != nil {
		return wrap(err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return wrap(err)
	}
	return nil
}
