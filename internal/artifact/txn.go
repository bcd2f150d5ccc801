package artifact

import (
	"context"
	"log/slog"
	"path"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/privops"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

// State is a step of the replace transaction.
type State string

const (
	StateIdle      State = "idle"
	StateStopping  State = "stopping"
	StateReplacing State = "replacing"
	StateRestoring State = "restoring"
	StateSwapping  State = "swapping"
	StateReloading State = "reloading"
	StateStarting  State = "starting"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// sequence is the forward path of a replace.
var sequence = []State{StateStopping, StateReplacing, StateRestoring, StateSwapping, StateReloading, StateStarting}

// Compensation is the recovery action taken when a state fails.
type Compensation string

const (
	CompensateNone  Compensation = "none"
	CompensateStart Compensation = "start_service"
)

// compensations maps a failed state to its recovery action. A failed stop leaves
// nothing to undo; a failed start is not repeated.
var compensations = map[State]Compensation{
	StateStopping:  CompensateNone,
	StateReplacing: CompensateStart,
	StateRestoring: CompensateStart,
	StateSwapping:  CompensateStart,
	StateReloading: CompensateStart,
	StateStarting:  CompensateNone,
}

// CompensationFor returns the recovery action for a failure in s.
func CompensationFor(s State) Compensation {
	if c, ok := compensations[s]; ok {
		return c
	}
	return CompensateNone
}

// Plan describes one replace: copy Source over Target while Unit is stopped.
type Plan struct {
	Unit      string
	Source    string
	Target    string
	Ownership privops.Ownership
	// Checksum is the expected sha256 of the copied bytes. Empty skips the check.
	Checksum string
}

// TempPath is where Source is copied and prepared before it is renamed over
// Target. It shares Target's directory so the rename stays on one filesystem.
func (p Plan) TempPath() string {
	return path.Join(path.Dir(p.Target), "."+path.Base(p.Target)+".replace")
}

// Verifier returns the sha256 of a file.
type Verifier func(path string) (string, error)

// Txn runs a Plan as stop, copy to a temp file, restore ownership, rename over
// the target, reload, start. Target is untouched until the rename, so when a
// step after the stop fails the service is started again on the old artifact.
type Txn struct {
	svc    svcctl.Controller
	ops    privops.Ops
	verify Verifier

	state           State
	trail           []State
	failedIn        State
	compensation    Compensation
	compensationErr error
}

// NewTxn returns an idle transaction.
func NewTxn(svc svcctl.Controller, ops privops.Ops, verify Verifier) *Txn {
	return &Txn{svc: svc, ops: ops, verify: verify, state: StateIdle, compensation: CompensateNone}
}

// State returns the current state.
func (t *Txn) State() State { return t.state }

// Trail returns every state entered, in order.
func (t *Txn) Trail() []State {
	out := make([]State, len(t.trail))
	copy(out, t.trail)
	return out
}

// FailedIn returns the state that failed, or "" after a success.
func (t *Txn) FailedIn() State { return t.failedIn }

// Compensation returns the recovery action taken and its error, if any.
func (t *Txn) Compensation() (Compensation, error) { return t.compensation, t.compensationErr }

// Run executes plan. It may be called once.
func (t *Txn) Run(ctx context.Context, plan Plan) error {
	if t.state != StateIdle {
		return errors.InternalError("transaction already ran").
			WithContext("txn_state", string(t.state)).
			Build()
	}

	start := time.Now()
	for _, s := range sequence {
		t.enter(s)
		if err := t.step(ctx, s, plan); err != nil {
			return t.fail(ctx, s, plan, err)
		}
	}
	t.enter(StateDone)
	slog.Info("Artifact replaced",
		logfields.Path(plan.Target),
		logfields.Unit(plan.Unit),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}

func (t *Txn) enter(s State) {
	t.state = s
	t.trail = append(t.trail, s)
	slog.Debug("Replace transaction", logfields.TxnState(string(s)))
}

func (t *Txn) step(ctx context.Context, s State, plan Plan) error {
	switch s {
	case StateStopping:
		return t.svc.Stop(ctx, plan.Unit)
	case StateReplacing:
		if err := t.ops.Copy(ctx, plan.Source, plan.TempPath()); err != nil {
			return err
		}
		return t.checkSum(plan)
	case StateRestoring:
		own := plan.Ownership
		if own.Owner != "" {
			if err := t.ops.Chown(ctx, plan.TempPath(), own.Owner, own.Group); err != nil {
				return err
			}
		}
		if own.Mode == 0 {
			return nil
		}
		return t.ops.Chmod(ctx, plan.TempPath(), own.Mode)
	case StateSwapping:
		return t.ops.Rename(ctx, plan.TempPath(), plan.Target)
	case StateReloading:
		return t.svc.DaemonReload(ctx)
	case StateStarting:
		return t.svc.Start(ctx, plan.Unit)
	default:
		return errors.InternalError("unknown transaction state").
			WithContext("txn_state", string(s)).
			Build()
	}
}

func (t *Txn) checkSum(plan Plan) error {
	if plan.Checksum == "" || t.verify == nil {
		return nil
	}
	got, err := t.verify(plan.TempPath())
	if err != nil {
		return err
	}
	if got != plan.Checksum {
		return errors.FileSystemError("checksum mismatch after copy").
			WithContext("expected", plan.Checksum).
			WithContext("actual", got).
			Build()
	}
	return nil
}

// fail records the failure, drops the temp file, runs the compensation and
// returns the primary error. Cleanup and compensation run even when ctx is
// already cancelled.
func (t *Txn) fail(ctx context.Context, s State, plan Plan, cause error) error {
	t.failedIn = s
	t.enter(StateFailed)
	t.compensation = CompensationFor(s)

	switch s {
	case StateReplacing, StateRestoring, StateSwapping:
		tmp := plan.TempPath()
		if err := t.ops.Remove(context.WithoutCancel(ctx), tmp); err != nil {
			slog.Warn("Failed to remove replacement temp file", logfields.Path(tmp), logfields.Error(err))
		}
	}

	if t.compensation == CompensateStart {
		if err := t.svc.Start(context.WithoutCancel(ctx), plan.Unit); err != nil {
			t.compensationErr = err
			slog.Warn("Compensating service start failed",
				logfields.Unit(plan.Unit),
				logfields.TxnState(string(s)),
				logfields.Error(err))
		}
	}

	category := errors.CategoryProcess
	if s == StateReplacing || s == StateRestoring || s == StateSwapping {
		category = errors.CategoryFileSystem
	}
	return errors.WrapError(cause, category, "artifact replace failed").
		WithContext("txn_state", string(s)).
		WithContext("compensation", string(t.compensation)).
		WithContext("compensated", t.compensation != CompensateNone && t.compensationErr == nil).
		WithContext("path", plan.Target).
		Build()
}
