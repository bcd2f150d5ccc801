package artifact

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/privops"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

const (
	livePath  = "/usr/local/bin/forpost-encoder"
	backupDir = "/var/lib/forpostctl/binaries"
	unit      = "forpost-stream"
)

type fixture struct {
	fs  *storage.FS
	ops *privops.FSOps
	svc *svcctl.Fake
	dep *Deployer
}

func newFixture(t *testing.T, live string) *fixture {
	t.Helper()
	fs := storage.NewMemory()
	ops := privops.NewFSOps(fs, privops.Ownership{Owner: "root", Group: "root", Mode: 0o644})
	if live != "" {
		require.NoError(t, fs.WriteFile(livePath, []byte(live), 0o755))
		ops.SetOwnership(livePath, privops.Ownership{Owner: "root", Group: "video", Mode: 0o750})
	}
	svc := svcctl.NewFake(unit)
	dep := NewDeployer(fs, ops, svc, Config{
		Path:       livePath,
		BackupDir:  backupDir,
		StagingDir: "/tmp",
		Unit:       unit,
		Fallback:   privops.Ownership{Owner: "root", Group: "root", Mode: 0o755},
	}).WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC) })
	return &fixture{fs: fs, ops: ops, svc: svc, dep: dep}
}

func (f *fixture) live(t *testing.T) string {
	t.Helper()
	data, err := f.fs.ReadFile(livePath)
	require.NoError(t, err)
	return string(data)
}

func TestUploadReplacesAndBacksUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "old binary")

	res, err := f.dep.Upload(ctx, []byte("new binary"))
	require.NoError(t, err)

	want := Checksum([]byte("new binary"))
	assert.Equal(t, want, res.Checksum)
	assert.Equal(t, int64(len("new binary")), res.Size)
	assert.Equal(t, "forpost-encoder.20260301-123045."+Checksum([]byte("old binary"))[:12], res.Backup)

	info, err := f.dep.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, want, info.Checksum)
	assert.True(t, info.ServiceActive)
	assert.Equal(t, "root", info.Owner)
	assert.Equal(t, "video", info.Group)
	assert.Equal(t, "0750", info.Mode)
	require.Len(t, info.Backups, 1)
	assert.Equal(t, res.Backup, info.Backups[0].Name)

	assert.Equal(t, []string{
		"stop " + unit,
		"daemon-reload ",
		"start " + unit,
	}, f.svc.Calls())

	files, err := f.fs.ReadDir("/tmp")
	require.NoError(t, err)
	assert.Empty(t, files, "staged upload must be removed")
}

func TestUploadWithoutLiveArtifactUsesFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	res, err := f.dep.Upload(ctx, []byte("first"))
	require.NoError(t, err)
	assert.Empty(t, res.Backup)

	own, err := f.ops.Stat(ctx, livePath)
	require.NoError(t, err)
	assert.Equal(t, privops.Ownership{Owner: "root", Group: "root", Mode: 0o755}, own)
	assert.Equal(t, "first", f.live(t))
}

func TestUploadEmptyPayload(t *testing.T) {
	f := newFixture(t, "old")
	_, err := f.dep.Upload(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Empty(t, f.svc.Calls())
}

// truncatingOps writes only the first bytes of a staged upload and then fails,
// the way cp does when the disk fills up.
type truncatingOps struct {
	*privops.FSOps
	fs *storage.FS
}

func (o truncatingOps) Copy(ctx context.Context, src, dst string) error {
	if !strings.HasPrefix(src, "/tmp/") {
		return o.FSOps.Copy(ctx, src, dst)
	}
	data, err := o.fs.ReadFile(src)
	if err != nil {
		return err
	}
	if err := o.fs.WriteFile(dst, data[:3], 0o755); err != nil {
		return err
	}
	return assert.AnError
}

func TestUploadPartialCopyKeepsLiveArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "old binary")
	dep := NewDeployer(f.fs, truncatingOps{FSOps: f.ops, fs: f.fs}, f.svc, f.dep.Config())

	_, err := dep.Upload(ctx, []byte("new binary"))
	require.Error(t, err)
	assert.True(t, errors.IsIOFailure(err))
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, "old binary", f.live(t))
	active, err := f.svc.IsActive(ctx, unit)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, []string{"stop " + unit, "start " + unit}, f.svc.Calls())

	ok, err := f.fs.Exists(Plan{Target: livePath}.TempPath())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadKeepsSetuidBit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "old binary")
	f.ops.SetOwnership(livePath, privops.Ownership{Owner: "root", Group: "video", Mode: 0o750 | os.ModeSetuid})

	_, err := f.dep.Upload(ctx, []byte("new binary"))
	require.NoError(t, err)

	info, err := f.dep.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4750", info.Mode)
}

func TestUploadStopFailureLeavesArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "old binary")
	f.svc.FailOn("stop", unit, assert.AnError)

	_, err := f.dep.Upload(ctx, []byte("new binary"))
	require.Error(t, err)
	assert.True(t, errors.IsProcessFailure(err))
	assert.Equal(t, "old binary", f.live(t))
	assert.Equal(t, []string{"stop " + unit}, f.svc.Calls())
}

func TestRestoreFromBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	up, err := f.dep.Upload(ctx, []byte("v2"))
	require.NoError(t, err)
	f.svc.Reset()

	res, err := f.dep.Restore(ctx, up.Backup)
	require.NoError(t, err)
	assert.Equal(t, Checksum([]byte("v1")), res.Checksum)
	assert.Equal(t, "v1", f.live(t))
	assert.Equal(t, []string{"stop " + unit, "daemon-reload ", "start " + unit}, f.svc.Calls())

	backups, err := f.dep.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestRestoreMissingBackup(t *testing.T) {
	f := newFixture(t, "v1")
	_, err := f.dep.Restore(context.Background(), "forpost-encoder.20200101-000000.abcdef012345")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, f.svc.Calls())
}

func TestDeleteBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")
	up, err := f.dep.Upload(ctx, []byte("v2"))
	require.NoError(t, err)

	require.NoError(t, f.dep.Delete(ctx, up.Backup))
	backups, err := f.dep.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	err = f.dep.Delete(ctx, up.Backup)
	assert.True(t, errors.IsNotFound(err))
}

// statFailing fails every Stat of one path.
type statFailing struct {
	billy.Filesystem
	path string
}

func (s statFailing) Stat(name string) (os.FileInfo, error) {
	if name == s.path {
		return nil, os.ErrPermission
	}
	return s.Filesystem.Stat(name)
}

func TestRestoreStatErrorIsIOFailure(t *testing.T) {
	ctx := context.Background()
	fs := storage.New(statFailing{Filesystem: memfs.New(), path: livePath})
	name := "forpost-encoder.20260101-000000.abcdef012345"
	require.NoError(t, fs.WriteFile(backupDir+"/"+name, []byte("v0"), 0o755))
	svc := svcctl.NewFake(unit)
	dep := NewDeployer(fs, privops.NewFSOps(fs, privops.Ownership{}), svc, Config{
		Path:      livePath,
		BackupDir: backupDir,
		Unit:      unit,
	})

	_, err := dep.Restore(ctx, name)
	require.Error(t, err)
	assert.True(t, errors.IsIOFailure(err))
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Empty(t, svc.Calls())
}

// untouchable panics on any filesystem call.
type untouchable struct{ billy.Filesystem }

func TestNameValidationBeforeFilesystemAccess(t *testing.T) {
	dep := NewDeployer(storage.New(untouchable{}), nil, nil, Config{Path: livePath, BackupDir: backupDir, Unit: unit})

	for _, name := range []string{"", " ", ".", "..", "../etc/passwd", "a/b", `a\b`, "a..b", "x\x00y", "/abs"} {
		t.Run(strings.ReplaceAll(name, "\x00", "NUL"), func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := dep.Restore(context.Background(), name)
				assert.True(t, errors.IsInvalidInput(err))
				assert.True(t, errors.IsInvalidInput(dep.Delete(context.Background(), name)))
			})
		})
	}
}

func TestInfoWithoutArtifact(t *testing.T) {
	f := newFixture(t, "")
	info, err := f.dep.Info(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Empty(t, info.Backups)
	assert.Equal(t, "active", info.ServiceState)
}

func TestBackupsNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "v1")

	times := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	var names []string
	for i, ts := range times {
		f.dep.WithClock(func() time.Time { return ts })
		up, err := f.dep.Upload(ctx, []byte{byte('a' + i)})
		require.NoError(t, err)
		names = append(names, up.Backup)
	}

	backups, err := f.dep.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, names[1], backups[0].Name)
	assert.Equal(t, names[0], backups[1].Name)
}
