// Package artifact replaces the privileged stream binary safely.
//
// An upload is checksummed before anything on disk changes, the previous binary
// is kept in an append-only backup directory, and the swap itself runs as a Txn
// around a stop and start of the dependent service. Backups are never rotated;
// they disappear only through Delete.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/logfields"
	"git.home.luguber.info/inful/forpostctl/internal/privops"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
	"git.home.luguber.info/inful/forpostctl/internal/svcctl"
)

const backupTimeLayout = "20060102-150405"

// Config locates the artifact and names the service that runs it.
type Config struct {
	Path      string
	BackupDir string
	// StagingDir receives uploads before the swap. Empty means the directory of
	// Path.
	StagingDir string
	Unit       string
	// Fallback is applied when there is no live artifact to copy ownership from.
	Fallback privops.Ownership
}

// Deployer manages the live artifact and its backups.
type Deployer struct {
	fs  *storage.FS
	ops privops.Ops
	svc svcctl.Controller
	cfg Config
	now func() time.Time
}

// NewDeployer wires a Deployer.
func NewDeployer(fs *storage.FS, ops privops.Ops, svc svcctl.Controller, cfg Config) *Deployer {
	if cfg.Fallback.Mode == 0 {
		cfg.Fallback.Mode = 0o755
	}
	return &Deployer{fs: fs, ops: ops, svc: svc, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source used for backup names.
func (d *Deployer) WithClock(now func() time.Time) *Deployer {
	d.now = now
	return d
}

// Config returns the deployer configuration.
func (d *Deployer) Config() Config { return d.cfg }

// UploadResult describes a successful upload.
type UploadResult struct {
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
	// Backup is the name of the snapshot of the replaced artifact, empty when
	// there was none.
	Backup string `json:"backup,omitempty"`
}

// RestoreResult describes a successful restore.
type RestoreResult struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// BackupInfo is one entry of the backup directory.
type BackupInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Info is a read-only view of the artifact and its service.
type Info struct {
	Path          string       `json:"path"`
	Exists        bool         `json:"exists"`
	Size          int64        `json:"size,omitempty"`
	ModTime       time.Time    `json:"mod_time,omitempty"`
	Checksum      string       `json:"checksum,omitempty"`
	Owner         string       `json:"owner,omitempty"`
	Group         string       `json:"group,omitempty"`
	Mode          string       `json:"mode,omitempty"`
	Backups       []BackupInfo `json:"backups"`
	Unit          string       `json:"unit"`
	ServiceActive bool         `json:"service_active"`
	ServiceState  string       `json:"service_state"`
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateBackupName rejects names that could leave the backup directory.
func ValidateBackupName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.ValidationError("backup name must not be empty").Build()
	case name == ".", strings.ContainsAny(name, "/\\\x00"), strings.Contains(name, ".."):
		return errors.ValidationError("invalid backup name").
			WithContext("name", name).
			Build()
	}
	return nil
}

// Upload installs payload as the live artifact.
func (d *Deployer) Upload(ctx context.Context, payload []byte) (UploadResult, error) {
	if len(payload) == 0 {
		return UploadResult{}, errors.ValidationError("artifact payload is empty").Build()
	}
	res := UploadResult{Checksum: Checksum(payload), Size: int64(len(payload))}

	if err := d.ops.MkdirAll(ctx, d.cfg.BackupDir); err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to create backup directory").
			WithContext("path", d.cfg.BackupDir).
			Build()
	}

	own, backup, err := d.snapshotLive(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	res.Backup = backup

	staged, err := d.fs.WriteTemp(d.stagePath(), payload)
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to stage artifact").
			WithContext("path", d.stagePath()).
			Build()
	}
	defer func() {
		if rmErr := d.fs.Remove(staged); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("Failed to remove staged artifact", logfields.Path(staged), logfields.Error(rmErr))
		}
	}()

	txn := NewTxn(d.svc, d.ops, d.checksumFile)
	if err := txn.Run(ctx, Plan{
		Unit:      d.cfg.Unit,
		Source:    staged,
		Target:    d.cfg.Path,
		Ownership: own,
		Checksum:  res.Checksum,
	}); err != nil {
		return UploadResult{}, err
	}

	slog.Info("Artifact uploaded",
		logfields.Checksum(res.Checksum),
		logfields.Size(res.Size),
		logfields.Backup(res.Backup))
	return res, nil
}

// snapshotLive copies the live artifact into the backup directory and returns
// its ownership. Without a live artifact the fallback ownership is returned.
func (d *Deployer) snapshotLive(ctx context.Context) (privops.Ownership, string, error) {
	exists, err := d.fs.Exists(d.cfg.Path)
	if err != nil {
		return privops.Ownership{}, "", errors.WrapError(err, errors.CategoryFileSystem, "failed to stat artifact").
			WithContext("path", d.cfg.Path).
			Build()
	}
	if !exists {
		return d.cfg.Fallback, "", nil
	}

	sum, err := d.checksumFile(d.cfg.Path)
	if err != nil {
		return privops.Ownership{}, "", err
	}
	name := d.backupName(sum)
	dst := path.Join(d.cfg.BackupDir, name)
	if err := d.ops.Copy(ctx, d.cfg.Path, dst); err != nil {
		return privops.Ownership{}, "", errors.WrapError(err, errors.CategoryFileSystem, "failed to back up artifact").
			WithContext("path", dst).
			Build()
	}

	own, err := d.ops.Stat(ctx, d.cfg.Path)
	if err != nil {
		return privops.Ownership{}, "", errors.WrapError(err, errors.CategoryFileSystem, "failed to read artifact ownership").
			WithContext("path", d.cfg.Path).
			Build()
	}
	slog.Debug("Artifact backed up", logfields.Backup(name), logfields.Checksum(sum))
	return own, name, nil
}

// Restore makes the named backup the live artifact.
func (d *Deployer) Restore(ctx context.Context, name string) (RestoreResult, error) {
	if err := ValidateBackupName(name); err != nil {
		return RestoreResult{}, err
	}
	src := path.Join(d.cfg.BackupDir, name)
	data, err := d.fs.ReadFile(src)
	if err != nil {
		return RestoreResult{}, d.backupError(name, err)
	}

	own := d.cfg.Fallback
	exists, err := d.fs.Exists(d.cfg.Path)
	if err != nil {
		return RestoreResult{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to stat artifact").
			WithContext("path", d.cfg.Path).
			Build()
	}
	if exists {
		if own, err = d.ops.Stat(ctx, d.cfg.Path); err != nil {
			return RestoreResult{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to read artifact ownership").
				WithContext("path", d.cfg.Path).
				Build()
		}
	}

	res := RestoreResult{Name: name, Checksum: Checksum(data), Size: int64(len(data))}
	txn := NewTxn(d.svc, d.ops, d.checksumFile)
	if err := txn.Run(ctx, Plan{
		Unit:      d.cfg.Unit,
		Source:    src,
		Target:    d.cfg.Path,
		Ownership: own,
		Checksum:  res.Checksum,
	}); err != nil {
		return RestoreResult{}, err
	}

	slog.Info("Artifact restored", logfields.Backup(name), logfields.Checksum(res.Checksum))
	return res, nil
}

// Delete removes the named backup.
func (d *Deployer) Delete(ctx context.Context, name string) error {
	if err := ValidateBackupName(name); err != nil {
		return err
	}
	p := path.Join(d.cfg.BackupDir, name)
	exists, err := d.fs.Exists(p)
	if err != nil {
		return d.backupError(name, err)
	}
	if !exists {
		return d.backupError(name, os.ErrNotExist)
	}
	if err := d.ops.Remove(ctx, p); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to delete backup").
			WithContext("name", name).
			Build()
	}
	slog.Info("Artifact backup deleted", logfields.Backup(name))
	return nil
}

// Info reports the live artifact, its backups and the service state.
func (d *Deployer) Info(ctx context.Context) (Info, error) {
	info := Info{Path: d.cfg.Path, Unit: d.cfg.Unit}

	st, err := d.fs.Stat(d.cfg.Path)
	switch {
	case err == nil:
		info.Exists = true
		info.Size = st.Size()
		info.ModTime = st.ModTime()
		if info.Checksum, err = d.checksumFile(d.cfg.Path); err != nil {
			return Info{}, err
		}
		own, err := d.ops.Stat(ctx, d.cfg.Path)
		if err != nil {
			return Info{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to read artifact ownership").
				WithContext("path", d.cfg.Path).
				Build()
		}
		info.Owner, info.Group, info.Mode = own.Owner, own.Group, own.ModeString()
	case !os.IsNotExist(err):
		return Info{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to stat artifact").
			WithContext("path", d.cfg.Path).
			Build()
	}

	if info.Backups, err = d.Backups(); err != nil {
		return Info{}, err
	}

	state, err := d.svc.ActiveState(ctx, d.cfg.Unit)
	if err != nil {
		return Info{}, err
	}
	info.ServiceState = state
	info.ServiceActive = state == "active"
	return info, nil
}

// Backups lists the backup directory, newest first.
func (d *Deployer) Backups() ([]BackupInfo, error) {
	files, err := d.fs.ReadDir(d.cfg.BackupDir)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to list backups").
			WithContext("path", d.cfg.BackupDir).
			Build()
	}
	out := make([]BackupInfo, 0, len(files))
	for _, f := range files {
		out = append(out, BackupInfo{Name: f.Name(), Size: f.Size(), ModTime: f.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].takenAt(), out[j].takenAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// takenAt returns the snapshot time encoded in the name, or the file's
// modification time for names that do not follow the backup scheme.
func (b BackupInfo) takenAt() time.Time {
	parts := strings.Split(b.Name, ".")
	if len(parts) >= 3 {
		if ts, err := time.ParseInLocation(backupTimeLayout, parts[len(parts)-2], time.Local); err == nil {
			return ts
		}
	}
	return b.ModTime
}

func (d *Deployer) backupName(sum string) string {
	short := sum
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s.%s.%s", path.Base(d.cfg.Path), d.now().Format(backupTimeLayout), short)
}

func (d *Deployer) stagePath() string {
	dir := d.cfg.StagingDir
	if dir == "" {
		dir = path.Dir(d.cfg.Path)
	}
	return path.Join(dir, "."+path.Base(d.cfg.Path)+".upload")
}

func (d *Deployer) checksumFile(p string) (string, error) {
	data, err := d.fs.ReadFile(p)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to read artifact").
			WithContext("path", p).
			Build()
	}
	return Checksum(data), nil
}

func (d *Deployer) backupError(name string, err error) error {
	if os.IsNotExist(err) {
		return errors.NotFoundError("artifact backup not found").
			WithCause(err).
			WithContext("name", name).
			Build()
	}
	return errors.WrapError(err, errors.CategoryFileSystem, "failed to read artifact backup").
		WithContext("name", name).
		Build()
}
