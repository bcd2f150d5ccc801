// Package svcctl is the boundary to the host service manager. The lifecycle
// packages only ever call a Controller; Systemctl talks to systemd and Fake is
// an in-memory stand-in for tests.
package svcctl

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
)

// Controller starts, stops and queries service units.
type Controller interface {
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) (bool, error)
	IsEnabled(ctx context.Context, unit string) (bool, error)
	// ActiveState returns the raw state string, e.g. "active" or "failed".
	ActiveState(ctx context.Context, unit string) (string, error)
	DaemonReload(ctx context.Context) error
}

// Result is the outcome of one systemctl invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs a command. err is only set when the command could not be
// started; a non-zero exit is reported through Result.ExitCode.
type Executor func(ctx context.Context, name string, args ...string) (Result, error)

// Systemctl drives systemd through the systemctl binary.
type Systemctl struct {
	Path string
	Sudo bool
	Exec Executor
}

// NewSystemctl returns a Systemctl that runs real processes.
func NewSystemctl(path string, sudo bool) *Systemctl {
	if path == "" {
		path = "systemctl"
	}
	return &Systemctl{Path: path, Sudo: sudo, Exec: execCommand}
}

func execCommand(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

func (s *Systemctl) invoke(ctx context.Context, args ...string) (Result, error) {
	name := s.Path
	if name == "" {
		name = "systemctl"
	}
	if s.Sudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}
	run := s.Exec
	if run == nil {
		run = execCommand
	}
	res, err := run(ctx, name, args...)
	if err != nil {
		return res, errors.WrapError(err, errors.CategoryProcess, "failed to run systemctl").
			WithContext("args", strings.Join(args, " ")).
			Build()
	}
	return res, nil
}

// mutate runs a state-changing verb and fails on a non-zero exit.
func (s *Systemctl) mutate(ctx context.Context, verb, unit string) error {
	args := []string{verb}
	if unit != "" {
		args = append(args, unit)
	}
	res, err := s.invoke(ctx, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.ProcessError("systemctl "+verb+" failed").
			WithContext("unit", unit).
			WithContext("exit_code", res.ExitCode).
			WithContext("stderr", strings.TrimSpace(res.Stderr)).
			Build()
	}
	slog.Debug("systemctl", slog.String("verb", verb), logfields.Unit(unit))
	return nil
}

func (s *Systemctl) Start(ctx context.Context, unit string) error {
	return s.mutate(ctx, "start", unit)
}

func (s *Systemctl) Stop(ctx context.Context, unit string) error {
	return s.mutate(ctx, "stop", unit)
}

func (s *Systemctl) Restart(ctx context.Context, unit string) error {
	return s.mutate(ctx, "restart", unit)
}

func (s *Systemctl) Enable(ctx context.Context, unit string) error {
	return s.mutate(ctx, "enable", unit)
}

func (s *Systemctl) Disable(ctx context.Context, unit string) error {
	return s.mutate(ctx, "disable", unit)
}

func (s *Systemctl) DaemonReload(ctx context.Context) error {
	return s.mutate(ctx, "daemon-reload", "")
}

// IsActive reports whether the unit's active state is "active". A non-zero exit
// of is-active means "not active" and is not an error.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	state, err := s.ActiveState(ctx, unit)
	if err != nil {
		return false, err
	}
	return state == "active", nil
}

// ActiveState returns the first line printed by systemctl is-active.
func (s *Systemctl) ActiveState(ctx context.Context, unit string) (string, error) {
	res, err := s.invoke(ctx, "is-active", unit)
	if err != nil {
		return "", err
	}
	state := strings.TrimSpace(res.Stdout)
	if state == "" {
		state = "unknown"
	}
	return state, nil
}

// IsEnabled reports whether systemctl is-enabled prints "enabled".
func (s *Systemctl) IsEnabled(ctx context.Context, unit string) (bool, error) {
	res, err := s.invoke(ctx, "is-enabled", unit)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "enabled", nil
}
