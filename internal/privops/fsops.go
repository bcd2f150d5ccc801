package privops

import (
	"context"
	"os"
	"sync"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
)

// FSOps implements Ops on a storage.FS. Ownership and mode are kept in a table
// because billy filesystems carry neither reliably. Files without an entry
// report Default.
type FSOps struct {
	FS      *storage.FS
	Default Ownership

	// FailCopy, when set, is consulted before every copy and its error returned.
	FailCopy func(src, dst string) error
	// FailChown, when set, is consulted before every chown.
	FailChown func(path string) error
	// FailRename, when set, is consulted before every rename.
	FailRename func(src, dst string) error

	mu    sync.Mutex
	owner map[string]Ownership
}

// NewFSOps returns an FSOps with def as the ownership of unknown files.
func NewFSOps(fs *storage.FS, def Ownership) *FSOps {
	return &FSOps{FS: fs, Default: def, owner: make(map[string]Ownership)}
}

// SetOwnership records ownership for path.
func (o *FSOps) SetOwnership(path string, own Ownership) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.owner == nil {
		o.owner = make(map[string]Ownership)
	}
	o.owner[path] = own
}

func (o *FSOps) lookup(path string) Ownership {
	o.mu.Lock()
	defer o.mu.Unlock()
	if own, ok := o.owner[path]; ok {
		return own
	}
	return o.Default
}

// Copy duplicates the bytes and the ownership record of src.
func (o *FSOps) Copy(_ context.Context, src, dst string) error {
	if o.FailCopy != nil {
		if err := o.FailCopy(src, dst); err != nil {
			return err
		}
	}
	if err := o.FS.Copy(src, dst); err != nil {
		return errors.WrapError(err, errors.CategoryProcess, "copy failed").
			WithContext("src", src).
			WithContext("dst", dst).
			Build()
	}
	o.SetOwnership(dst, o.lookup(src))
	return nil
}

// Rename moves src over dst together with its ownership record.
func (o *FSOps) Rename(_ context.Context, src, dst string) error {
	if o.FailRename != nil {
		if err := o.FailRename(src, dst); err != nil {
			return err
		}
	}
	if err := o.mustExist(src); err != nil {
		return err
	}
	own := o.lookup(src)
	if err := o.FS.Rename(src, dst); err != nil {
		return errors.WrapError(err, errors.CategoryProcess, "rename failed").
			WithContext("src", src).
			WithContext("dst", dst).
			Build()
	}
	o.mu.Lock()
	delete(o.owner, src)
	o.mu.Unlock()
	o.SetOwnership(dst, own)
	return nil
}

// Chown updates the owner and group of path.
func (o *FSOps) Chown(_ context.Context, path, owner, group string) error {
	if o.FailChown != nil {
		if err := o.FailChown(path); err != nil {
			return err
		}
	}
	if err := o.mustExist(path); err != nil {
		return err
	}
	own := o.lookup(path)
	own.Owner = owner
	if group != "" {
		own.Group = group
	}
	o.SetOwnership(path, own)
	return nil
}

// Chmod updates the permission and special bits of path.
func (o *FSOps) Chmod(_ context.Context, path string, mode os.FileMode) error {
	if err := o.mustExist(path); err != nil {
		return err
	}
	own := o.lookup(path)
	own.Mode = mode & ModeBits
	o.SetOwnership(path, own)
	return nil
}

// MkdirAll creates dir.
func (o *FSOps) MkdirAll(_ context.Context, dir string) error {
	if err := o.FS.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryProcess, "mkdir failed").
			WithContext("dir", dir).
			Build()
	}
	return nil
}

// Remove deletes path and forgets its ownership. A missing file is not an error.
func (o *FSOps) Remove(_ context.Context, path string) error {
	if err := o.FS.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryProcess, "remove failed").
			WithContext("path", path).
			Build()
	}
	o.mu.Lock()
	delete(o.owner, path)
	o.mu.Unlock()
	return nil
}

// Stat returns the recorded ownership of path.
func (o *FSOps) Stat(_ context.Context, path string) (Ownership, error) {
	if err := o.mustExist(path); err != nil {
		return Ownership{}, err
	}
	return o.lookup(path), nil
}

func (o *FSOps) mustExist(path string) error {
	ok, err := o.FS.Exists(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "stat failed").
			WithContext("path", path).
			Build()
	}
	if !ok {
		return errors.NotFoundError("file not found").
			WithCause(os.ErrNotExist).
			WithContext("path", path).
			Build()
	}
	return nil
}
