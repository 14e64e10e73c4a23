// Package blob provides crash-safe file access for the pawls data directory.
//
// All writes go through a temporary file in the destination directory that
// is synced and then renamed over the target, so a reader never observes a
// partially written file.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/pawls/pkg/errs"
)

// tmpSuffix marks in-flight files. Listings never match it because callers
// filter by extension.
const tmpSuffix = ".tmp"

// Store reads and writes files on an afero filesystem.
type Store struct {
	fs afero.Fs
}

// New creates a Store. A nil fs means the operating system filesystem.
func New(fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs}
}

// Fs returns the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Read opens path for reading. The caller must close the returned file.
func (s *Store) Read(path string) (afero.File, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, classify("Read", path, err)
	}
	return f, nil
}

// ReadFile returns the contents of path.
func (s *Store) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, classify("ReadFile", path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// ListChildren returns the paths of the entries of dir whose base name
// matches pattern (filepath.Match syntax), sorted. A missing dir yields no
// entries.
func (s *Store) ListChildren(dir, pattern string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var paths []string
	for _, info := range infos {
		ok, err := filepath.Match(pattern, info.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// WriteFileAtomic replaces path with data.
func (s *Store) WriteFileAtomic(path string, data []byte) error {
	return s.WriteAtomic(path, bytes.NewReader(data))
}

// WriteAtomic replaces path with everything r yields. Parent directories are
// created as needed.
func (s *Store) WriteAtomic(path string, r io.Reader) error {
	tmp, err := s.Stage(filepath.Dir(path), r)
	if err != nil {
		return err
	}
	return s.Publish(tmp, path)
}

// Stage copies r into a new temporary file inside dir and returns its path.
// The file is synced before Stage returns. On failure nothing is left
// behind.
func (s *Store) Stage(dir string, r io.Reader) (string, error) {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	name := filepath.Join(dir, "."+uuid.NewString()+tmpSuffix)
	f, err := s.fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	committed := false
	defer func() {
		_ = f.Close()
		if !committed {
			_ = s.fs.Remove(name)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}

	committed = true
	return name, nil
}

// Publish atomically moves a staged file to path. Both must be on the same
// filesystem.
func (s *Store) Publish(tmp, path string) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return errs.Wrap("Publish", errs.ErrConflict, err)
	}
	return s.syncDir(dir)
}

// Discard removes a staged file that will not be published.
func (s *Store) Discard(tmp string) {
	_ = s.fs.Remove(tmp)
}

// Remove deletes path. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// syncDir makes a rename durable on filesystems that support it.
func (s *Store) syncDir(dir string) error {
	d, err := s.fs.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory %s: %w", dir, err)
	}
	return nil
}

func classify(op, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return errs.Wrap(op, errs.ErrNotFound, err)
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
