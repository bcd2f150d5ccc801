// Package privops isolates the file operations that need elevated rights: copying
// over root-owned paths, changing ownership and changing permission bits.
//
// Callers receive an Ops value and never shell out themselves. Production uses
// Exec, which runs coreutils (optionally through sudo); tests use FSOps, which
// applies the same operations to a storage.FS and tracks ownership in a table.
package privops

import (
	"context"
	"fmt"
	"os"
	"os/user"
)

// Identity is a user/group pair that files are handed to.
type Identity struct {
	User  string `yaml:"user"`
	Group string `yaml:"group"`
}

// IsZero reports whether no user is set.
func (i Identity) IsZero() bool { return i.User == "" }

// String renders user:group, or just the user when no group is set.
func (i Identity) String() string {
	if i.Group == "" {
		return i.User
	}
	return i.User + ":" + i.Group
}

// Ownership is the owner, group and permission bits of a file.
type Ownership struct {
	Owner string      `json:"owner"`
	Group string      `json:"group"`
	Mode  os.FileMode `json:"mode"`
}

// ModeBits selects the permission bits of a FileMode together with setuid,
// setgid and sticky.
const ModeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// ModeString renders the mode as an octal string such as 0755 or 4755.
func (o Ownership) ModeString() string {
	return fmt.Sprintf("%04o", Octal(o.Mode))
}

// Octal returns the chmod(1) number for mode, with setuid, setgid and sticky
// in the leading digit.
func Octal(mode os.FileMode) uint32 {
	n := uint32(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		n |= 0o4000
	}
	if mode&os.ModeSetgid != 0 {
		n |= 0o2000
	}
	if mode&os.ModeSticky != 0 {
		n |= 0o1000
	}
	return n
}

// Ops is the privileged file capability injected into the deployer.
type Ops interface {
	// Copy duplicates src to dst preserving mode, ownership and timestamps where
	// the implementation can.
	Copy(ctx context.Context, src, dst string) error
	// Rename moves src over dst in one step. Both must be on the same filesystem.
	Rename(ctx context.Context, src, dst string) error
	Chown(ctx context.Context, path, owner, group string) error
	Chmod(ctx context.Context, path string, mode os.FileMode) error
	MkdirAll(ctx context.Context, dir string) error
	Remove(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (Ownership, error)
}

// Reassigner hands files written by an elevated process back to the primary
// operating identity. It does nothing when the process is not elevated or no
// identity is known.
type Reassigner struct {
	Ops      Ops
	Identity Identity
	Elevated bool
}

// Reassign changes the owner of path to the primary identity.
func (r *Reassigner) Reassign(ctx context.Context, path string) error {
	if r == nil || r.Ops == nil || !r.Elevated || r.Identity.IsZero() {
		return nil
	}
	group := r.Identity.Group
	if group == "" {
		group = primaryGroup(r.Identity.User)
	}
	return r.Ops.Chown(ctx, path, r.Identity.User, group)
}

// DetectIdentity resolves the primary operating identity. A configured identity
// wins; otherwise the invoking user of sudo is used. The second return value
// reports whether the current process runs as root.
func DetectIdentity(configured Identity) (Identity, bool) {
	elevated := os.Geteuid() == 0
	if !configured.IsZero() {
		return configured, elevated
	}
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return Identity{User: sudoUser, Group: primaryGroup(sudoUser)}, elevated
	}
	return Identity{}, elevated
}

// primaryGroup returns the name of the user's primary group, or "" if unknown.
func primaryGroup(username string) string {
	u, err := user.Lookup(username)
	if err != nil {
		return ""
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		return u.Gid
	}
	return g.Name
}
