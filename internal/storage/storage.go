// Package storage provides the filesystem seam shared by the config, backup and
// artifact packages.
//
// All persisted appliance state (the stream config, its backup slots, the live
// binary and its backups) is reached through an FS value. Production binds it to
// the host filesystem; tests bind it to an in-memory filesystem so the lifecycle
// logic runs without touching real paths.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
)

// DefaultFileMode is used for files that did not exist before a write.
const DefaultFileMode os.FileMode = 0o644

// FS wraps a billy filesystem with the whole-file operations the lifecycle needs.
type FS struct {
	fs billy.Filesystem
}

// New creates an FS on top of any billy filesystem.
func New(fs billy.Filesystem) *FS {
	return &FS{fs: fs}
}

// NewOS returns an FS rooted at the host filesystem root; paths are absolute.
func NewOS() *FS {
	return New(osfs.New("/"))
}

// NewMemory returns an empty in-memory FS.
func NewMemory() *FS {
	return New(memfs.New())
}

// ReadFile returns the full contents of name.
func (s *FS) ReadFile(name string) ([]byte, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// WriteFile replaces name with data via a temporary sibling and a rename, so a
// crash leaves either the old or the new content. An existing file keeps its
// permission bits; a new one gets perm.
func (s *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if info, err := s.fs.Stat(name); err == nil {
		perm = info.Mode().Perm()
	}

	dir := path.Dir(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := tempName(name)
	if err != nil {
		return err
	}

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp) // best effort cleanup
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// WriteTemp stores data in a new temporary file next to name and returns its path.
// The caller owns the file and must remove it.
func (s *FS) WriteTemp(name string, data []byte) (string, error) {
	tmp, err := tempName(name)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp, nil
}

// Copy duplicates src into dst, keeping the permission bits of src.
func (s *FS) Copy(src, dst string) error {
	info, err := s.fs.Stat(src)
	if err != nil {
		return err
	}
	data, err := s.ReadFile(src)
	if err != nil {
		return err
	}
	if err := s.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return err
	}
	return nil
}

// Exists reports whether name exists. Errors other than "not exist" are returned.
func (s *FS) Exists(name string) (bool, error) {
	_, err := s.fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns file metadata for name.
func (s *FS) Stat(name string) (os.FileInfo, error) {
	return s.fs.Stat(name)
}

// Remove deletes a single file.
func (s *FS) Remove(name string) error {
	return s.fs.Remove(name)
}

// Rename moves oldpath to newpath, replacing newpath if present.
func (s *FS) Rename(oldpath, newpath string) error {
	return s.fs.Rename(oldpath, newpath)
}

// Chmod sets the permission bits of name. Filesystems without permission
// support ignore it.
func (s *FS) Chmod(name string, mode os.FileMode) error {
	if ch, ok := s.fs.(billy.Chmod); ok {
		return ch.Chmod(name, mode)
	}
	return nil
}

// MkdirAll creates dir and any missing parents.
func (s *FS) MkdirAll(dir string, perm os.FileMode) error {
	return s.fs.MkdirAll(dir, perm)
}

// ReadDir lists regular files in dir sorted by name. A missing dir yields nil.
func (s *FS) ReadDir(dir string) ([]os.FileInfo, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	return files, nil
}

// Join joins path elements using the underlying filesystem's separator.
func (s *FS) Join(elem ...string) string {
	return s.fs.Join(elem...)
}

func tempName(name string) (string, error) {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("generating random suffix: %w", err)
	}
	return name + ".tmp." + hex.EncodeToString(randBytes), nil
}
