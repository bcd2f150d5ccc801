package privops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec performs privileged operations with coreutils, prefixed with sudo -n when
// Sudo is set.
type Exec struct {
	Sudo bool
	Run  Runner
}

// NewExec returns an Exec that runs real processes.
func NewExec(sudo bool) *Exec {
	return &Exec{Sudo: sudo, Run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func (e *Exec) run(ctx context.Context, name string, args ...string) error {
	if e.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}
	runner := e.Run
	if runner == nil {
		runner = runCommand
	}
	out, err := runner(ctx, name, args...)
	if err != nil {
		return errors.WrapError(err, errors.CategoryProcess, "privileged command failed").
			WithContext("command", strings.Join(append([]string{name}, args...), " ")).
			WithContext("output", strings.TrimSpace(string(out))).
			Build()
	}
	return nil
}

// Copy runs cp -p so mode, ownership and timestamps follow the source.
func (e *Exec) Copy(ctx context.Context, src, dst string) error {
	return e.run(ctx, "cp", "-p", "--", src, dst)
}

// Rename runs mv -f.
func (e *Exec) Rename(ctx context.Context, src, dst string) error {
	return e.run(ctx, "mv", "-f", "--", src, dst)
}

// Chown runs chown owner[:group].
func (e *Exec) Chown(ctx context.Context, path, owner, group string) error {
	spec := owner
	if group != "" {
		spec = owner + ":" + group
	}
	return e.run(ctx, "chown", spec, "--", path)
}

// Chmod runs chmod with the octal form of mode, special bits included.
func (e *Exec) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	return e.run(ctx, "chmod", fmt.Sprintf("%o", Octal(mode)), "--", path)
}

// MkdirAll runs mkdir -p.
func (e *Exec) MkdirAll(ctx context.Context, dir string) error {
	return e.run(ctx, "mkdir", "-p", "--", dir)
}

// Remove runs rm -f.
func (e *Exec) Remove(ctx context.Context, path string) error {
	return e.run(ctx, "rm", "-f", "--", path)
}

// Stat reads owner, group and mode with stat(2). Names fall back to numeric ids
// when the user or group database has no entry.
func (e *Exec) Stat(_ context.Context, path string) (Ownership, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if err == unix.ENOENT {
			return Ownership{}, errors.WrapError(os.ErrNotExist, errors.CategoryNotFound, "file not found").
				WithContext("path", path).
				Build()
		}
		return Ownership{}, errors.WrapError(err, errors.CategoryFileSystem, "stat failed").
			WithContext("path", path).
			Build()
	}

	uid := strconv.FormatUint(uint64(st.Uid), 10)
	gid := strconv.FormatUint(uint64(st.Gid), 10)
	owner, group := uid, gid
	if u, err := user.LookupId(uid); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(gid); err == nil {
		group = g.Name
	}

	return Ownership{
		Owner: owner,
		Group: group,
		Mode:  fileMode(st.Mode),
	}, nil
}

// fileMode converts the st_mode permission and special bits to an os.FileMode.
func fileMode(raw uint32) os.FileMode {
	m := os.FileMode(raw & 0o777)
	if raw&unix.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if raw&unix.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if raw&unix.S_ISVTX != 0 {
		m |= os.ModeSticky
	}
	return m
}
