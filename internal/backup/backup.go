// Package backup keeps a fixed-depth ring of full snapshots of the persisted
// config file next to it, named <config>.backup.1 (newest) to <config>.backup.N.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
)

// DefaultDepth is the number of slots kept when Options.Depth is zero.
const DefaultDepth = 3

// Reassigner hands a written file to the primary operating identity.
type Reassigner interface {
	Reassign(ctx context.Context, path string) error
}

// Options tune a Store.
type Options struct {
	Depth int
	// SnapshotBeforeRestore pushes the live file into the ring before a restore
	// overwrites it.
	SnapshotBeforeRestore bool
}

// Slot describes one occupied backup slot.
type Slot struct {
	Slot     int       `json:"slot"`
	Filename string    `json:"filename"`
	ModTime  time.Time `json:"mod_time"`
	Size     int64     `json:"size"`
}

// Snapshot is a slot together with its content.
type Snapshot struct {
	Slot
	Content string `json:"content"`
}

// Store manages the backup ring of one config file.
type Store struct {
	fs    *storage.FS
	path  string
	owner Reassigner
	opts  Options
}

// NewStore creates a Store for the config file at path. owner may be nil.
func NewStore(fs *storage.FS, path string, owner Reassigner, opts Options) *Store {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	return &Store{fs: fs, path: path, owner: owner, opts: opts}
}

// Depth returns the number of slots.
func (s *Store) Depth() int { return s.opts.Depth }

// SlotPath returns the file path of slot n.
func (s *Store) SlotPath(n int) string {
	return fmt.Sprintf("%s.backup.%d", s.path, n)
}

// SaveRaw rotates the ring, snapshots the current file into slot 1 and writes
// content as the new config file.
func (s *Store) SaveRaw(ctx context.Context, content string) error {
	if content == "" {
		return errors.ValidationError("content must not be empty").
			WithContext("path", s.path).
			Build()
	}

	if err := s.snapshot(ctx); err != nil {
		return err
	}

	if err := s.fs.WriteFile(s.path, []byte(content), storage.DefaultFileMode); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config").
			WithContext("path", s.path).
			Build()
	}
	return s.reassign(ctx, s.path)
}

// snapshot shifts every slot down by one, evicting the last, and copies the live
// file into slot 1. Nothing is copied when the live file does not exist.
func (s *Store) snapshot(ctx context.Context) error {
	if err := s.rotate(); err != nil {
		return err
	}

	exists, err := s.fs.Exists(s.path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to stat config").
			WithContext("path", s.path).
			Build()
	}
	if !exists {
		return nil
	}

	first := s.SlotPath(1)
	if err := s.fs.Copy(s.path, first); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to snapshot config").
			WithContext("path", first).
			Build()
	}
	slog.Debug("Config snapshot written", logfields.Path(first), logfields.Slot(1))
	return s.reassign(ctx, first)
}

func (s *Store) rotate() error {
	oldest := s.SlotPath(s.opts.Depth)
	if err := s.fs.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to evict backup").
			WithContext("path", oldest).
			Build()
	}

	for n := s.opts.Depth - 1; n >= 1; n-- {
		from, to := s.SlotPath(n), s.SlotPath(n+1)
		exists, err := s.fs.Exists(from)
		if err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to stat backup").
				WithContext("path", from).
				Build()
		}
		if !exists {
			continue
		}
		if err := s.fs.Rename(from, to); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to rotate backup").
				WithContext("from", from).
				WithContext("to", to).
				Build()
		}
	}
	return nil
}

// List returns the occupied slots in ascending order.
func (s *Store) List() ([]Slot, error) {
	var out []Slot
	for n := 1; n <= s.opts.Depth; n++ {
		p := s.SlotPath(n)
		info, err := s.fs.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to stat backup").
				WithContext("path", p).
				Build()
		}
		out = append(out, Slot{Slot: n, Filename: info.Name(), ModTime: info.ModTime(), Size: info.Size()})
	}
	return out, nil
}

// Get returns the content and metadata of slot n.
func (s *Store) Get(n int) (Snapshot, error) {
	if err := s.checkRange(n); err != nil {
		return Snapshot{}, err
	}
	p := s.SlotPath(n)
	info, err := s.fs.Stat(p)
	if err != nil {
		return Snapshot{}, s.slotError(n, err)
	}
	data, err := s.fs.ReadFile(p)
	if err != nil {
		return Snapshot{}, s.slotError(n, err)
	}
	return Snapshot{
		Slot:    Slot{Slot: n, Filename: info.Name(), ModTime: info.ModTime(), Size: info.Size()},
		Content: string(data),
	}, nil
}

// Restore overwrites the live config file with slot n. The ring is only changed
// when SnapshotBeforeRestore is set; the restored content is read first so it
// survives the rotation.
func (s *Store) Restore(ctx context.Context, n int) (Snapshot, error) {
	snap, err := s.Get(n)
	if err != nil {
		return Snapshot{}, err
	}

	if s.opts.SnapshotBeforeRestore {
		if err := s.snapshot(ctx); err != nil {
			return Snapshot{}, err
		}
	}

	if err := s.fs.WriteFile(s.path, []byte(snap.Content), storage.DefaultFileMode); err != nil {
		return Snapshot{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to restore config").
			WithContext("path", s.path).
			WithContext("slot", n).
			Build()
	}
	if err := s.reassign(ctx, s.path); err != nil {
		return Snapshot{}, err
	}
	slog.Info("Config restored from backup", logfields.Slot(n), logfields.Path(s.path))
	return snap, nil
}

// Delete removes slot n. Later slots keep their numbers.
func (s *Store) Delete(n int) error {
	if err := s.checkRange(n); err != nil {
		return err
	}
	if err := s.fs.Remove(s.SlotPath(n)); err != nil {
		return s.slotError(n, err)
	}
	return nil
}

func (s *Store) checkRange(n int) error {
	if n < 1 || n > s.opts.Depth {
		return errors.NotFoundError("backup slot out of range").
			WithContext("slot", n).
			WithContext("depth", s.opts.Depth).
			Build()
	}
	return nil
}

func (s *Store) slotError(n int, err error) error {
	if os.IsNotExist(err) {
		return errors.NotFoundError("backup slot is empty").
			WithCause(err).
			WithContext("slot", n).
			Build()
	}
	return errors.WrapError(err, errors.CategoryFileSystem, "failed to read backup").
		WithContext("slot", n).
		Build()
}

func (s *Store) reassign(ctx context.Context, p string) error {
	if s.owner == nil {
		return nil
	}
	if err := s.owner.Reassign(ctx, p); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to set backup ownership").
			WithContext("path", p).
			Build()
	}
	return nil
}
