package testutil

import (
	"io"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/arthur-debert/homemigrate/pkg/filesystem"
)

// FailingFS wraps an FS and fails chosen operations. Failures are keyed by
// the base name of the file so tests need not know absolute paths.
type FailingFS struct {
	filesystem.FS

	mu      sync.Mutex
	remove  map[string]error
	create  map[string]error
	removed []string
}

// NewFailingFS wraps inner
func NewFailingFS(inner filesystem.FS) *FailingFS {
	return &FailingFS{
		FS:     inner,
		remove: make(map[string]error),
		create: make(map[string]error),
	}
}

// FailRemove makes Remove fail with err for files named base
func (f *FailingFS) FailRemove(base string, err error) *FailingFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove[base] = err
	return f
}

// FailCreate makes Create fail with err for files named base
func (f *FailingFS) FailCreate(base string, err error) *FailingFS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.create[base] = err
	return f
}

// Removed returns the paths removed successfully, in order
func (f *FailingFS) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

// Remove implements filesystem.FS
func (f *FailingFS) Remove(name string) error {
	f.mu.Lock()
	err, fail := f.remove[filepath.Base(name)]
	f.mu.Unlock()
	if fail {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	if err := f.FS.Remove(name); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	return nil
}

// Create implements filesystem.FS
func (f *FailingFS) Create(name string, perm fs.FileMode) (io.WriteCloser, error) {
	f.mu.Lock()
	err, fail := f.create[filepath.Base(name)]
	f.mu.Unlock()
	if fail {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return f.FS.Create(name, perm)
}
