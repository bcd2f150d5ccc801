package artifact

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/privops"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

func txnFixture(t *testing.T) (*storage.FS, *privops.FSOps, *svcctl.Fake, Plan) {
	t.Helper()
	fs := storage.NewMemory()
	require.NoError(t, fs.WriteFile("/staged", []byte("new"), 0o600))
	require.NoError(t, fs.WriteFile("/live", []byte("old"), 0o755))
	ops := privops.NewFSOps(fs, privops.Ownership{Owner: "root", Group: "root", Mode: 0o600})
	return fs, ops, svcctl.NewFake("svc"), Plan{
		Unit:      "svc",
		Source:    "/staged",
		Target:    "/live",
		Ownership: privops.Ownership{Owner: "root", Group: "video", Mode: 0o750},
		Checksum:  Checksum([]byte("new")),
	}
}

func verifier(fs *storage.FS) Verifier {
	return func(p string) (string, error) {
		data, err := fs.ReadFile(p)
		if err != nil {
			return "", err
		}
		return Checksum(data), nil
	}
}

func TestTxnHappyPath(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	txn := NewTxn(svc, ops, verifier(fs))

	require.NoError(t, txn.Run(context.Background(), plan))
	assert.Equal(t, StateDone, txn.State())
	assert.Equal(t, []State{StateStopping, StateReplacing, StateRestoring, StateSwapping, StateReloading, StateStarting, StateDone}, txn.Trail())
	assert.Empty(t, txn.FailedIn())

	own, err := ops.Stat(context.Background(), "/live")
	require.NoError(t, err)
	assert.Equal(t, plan.Ownership, own)
	assert.Equal(t, "new", readLive(t, fs))
	assertNoTemp(t, fs, plan)
}

func readLive(t *testing.T, fs *storage.FS) string {
	t.Helper()
	data, err := fs.ReadFile("/live")
	require.NoError(t, err)
	return string(data)
}

func assertNoTemp(t *testing.T, fs *storage.FS, plan Plan) {
	t.Helper()
	ok, err := fs.Exists(plan.TempPath())
	require.NoError(t, err)
	assert.False(t, ok, "temp file %s left behind", plan.TempPath())
}

func TestPlanTempPathIsBesideTarget(t *testing.T) {
	plan := Plan{Target: "/usr/local/bin/forpost-encoder"}
	assert.Equal(t, "/usr/local/bin/.forpost-encoder.replace", plan.TempPath())
}

func TestTxnCompensationTable(t *testing.T) {
	cases := []struct {
		state   State
		inject  func(ops *privops.FSOps, svc *svcctl.Fake)
		comp    Compensation
		active  bool
		ioError bool
		live    string
	}{
		{StateStopping, func(_ *privops.FSOps, svc *svcctl.Fake) { svc.FailOn("stop", "svc", assert.AnError) }, CompensateNone, true, false, "old"},
		{StateReplacing, func(ops *privops.FSOps, _ *svcctl.Fake) {
			ops.FailCopy = func(string, string) error { return assert.AnError }
		}, CompensateStart, true, true, "old"},
		{StateRestoring, func(ops *privops.FSOps, _ *svcctl.Fake) {
			ops.FailChown = func(string) error { return assert.AnError }
		}, CompensateStart, true, true, "old"},
		{StateSwapping, func(ops *privops.FSOps, _ *svcctl.Fake) {
			ops.FailRename = func(string, string) error { return assert.AnError }
		}, CompensateStart, true, true, "old"},
		{StateReloading, func(_ *privops.FSOps, svc *svcctl.Fake) { svc.FailOn("daemon-reload", "", assert.AnError) }, CompensateStart, true, false, "new"},
		{StateStarting, func(_ *privops.FSOps, svc *svcctl.Fake) { svc.FailOn("start", "svc", assert.AnError) }, CompensateNone, false, false, "new"},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			fs, ops, svc, plan := txnFixture(t)
			tc.inject(ops, svc)
			txn := NewTxn(svc, ops, verifier(fs))

			err := txn.Run(context.Background(), plan)
			require.Error(t, err)
			assert.ErrorIs(t, err, assert.AnError)
			assert.Equal(t, tc.ioError, errors.IsIOFailure(err))
			assert.Equal(t, !tc.ioError, errors.IsProcessFailure(err))

			assert.Equal(t, StateFailed, txn.State())
			assert.Equal(t, tc.state, txn.FailedIn())
			comp, compErr := txn.Compensation()
			assert.Equal(t, tc.comp, comp)
			assert.NoError(t, compErr)
			assert.Equal(t, tc.comp, CompensationFor(tc.state))

			active, _ := svc.IsActive(context.Background(), "svc")
			assert.Equal(t, tc.active, active)
			assert.Equal(t, tc.live, readLive(t, fs))
			assertNoTemp(t, fs, plan)
		})
	}
}

func TestTxnCompensationFailureDoesNotMaskPrimary(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	ops.FailCopy = func(string, string) error { return assert.AnError }
	svc.FailOn("start", "svc", errors.ProcessError("start failed").Build())
	txn := NewTxn(svc, ops, verifier(fs))

	err := txn.Run(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.IsIOFailure(err))

	_, compErr := txn.Compensation()
	assert.Error(t, compErr)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	compensated, _ := ce.Context().Get("compensated")
	assert.Equal(t, false, compensated)
}

func TestTxnChecksumMismatch(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	plan.Checksum = Checksum([]byte("something else"))
	txn := NewTxn(svc, ops, verifier(fs))

	err := txn.Run(context.Background(), plan)
	require.Error(t, err)
	assert.True(t, errors.IsIOFailure(err))
	assert.Equal(t, StateReplacing, txn.FailedIn())
	active, _ := svc.IsActive(context.Background(), "svc")
	assert.True(t, active)
	assert.Equal(t, "old", readLive(t, fs))
	assertNoTemp(t, fs, plan)
}

func TestTxnKeepsSpecialModeBits(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	plan.Ownership.Mode = 0o755 | os.ModeSetuid
	txn := NewTxn(svc, ops, verifier(fs))

	require.NoError(t, txn.Run(context.Background(), plan))
	own, err := ops.Stat(context.Background(), "/live")
	require.NoError(t, err)
	assert.Equal(t, plan.Ownership.Mode, own.Mode)
	assert.Equal(t, "4755", own.ModeString())
}

func TestTxnRunsOnce(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	txn := NewTxn(svc, ops, verifier(fs))
	require.NoError(t, txn.Run(context.Background(), plan))
	assert.Error(t, txn.Run(context.Background(), plan))
}

func TestTxnCompensatesAfterCancel(t *testing.T) {
	fs, ops, svc, plan := txnFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	ops.FailCopy = func(string, string) error {
		cancel()
		return assert.AnError
	}
	txn := NewTxn(svc, ops, verifier(fs))

	require.Error(t, txn.Run(ctx, plan))
	active, _ := svc.IsActive(context.Background(), "svc")
	assert.True(t, active)
}
