package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/kvconfig"
)

const testDefaults = `# Stream endpoint
RTMP_URL="__RTMP_URL__"
OVERLAY_TEXT=""
VIDEO_BITRATE=2500
`

type cliEnv struct {
	dir        string
	configFile string
	streamConf string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configFile: filepath.Join(dir, "forpostctl.yaml"),
		streamConf: filepath.Join(dir, "config", "stream.conf"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "stream.conf.template"), []byte(testDefaults), 0o644))

	yaml := fmt.Sprintf(`paths:
  config_file: %[1]s/config/stream.conf
  defaults_file: %[1]s/config/stream.conf.template
  state_dir: %[1]s/state
  dynamic_overlay_file: %[1]s/run/overlay.txt
  scanning_state_file: %[1]s/run/scanning.txt
artifact:
  path: %[1]s/bin/forpost-encoder
  backup_dir: %[1]s/binaries
service:
  use_sudo: false
  systemctl_path: "true"
stream:
  critical_keys: [RTMP_URL, VIDEO_BITRATE]
`, dir)
	require.NoError(t, os.WriteFile(env.configFile, []byte(yaml), 0o644))
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("forpostctl"),
		Vars("test"),
		kong.Exit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)
	kctx, err := parser.Parse(append([]string{"--config", e.configFile}, args...))
	require.NoError(t, err)

	var out bytes.Buffer
	err = kctx.Run(&Global{Ctx: t.Context(), Out: &out}, &cli)
	return out.String(), err
}

func TestParseAssignments(t *testing.T) {
	updates, err := ParseAssignments([]string{"A=1", "B=", "C=x=y"})
	require.NoError(t, err)
	assert.Equal(t, kvconfig.Updates{
		{Key: "A", Value: "1"},
		{Key: "B", Value: ""},
		{Key: "C", Value: "x=y"},
	}, updates)

	for _, bad := range []string{"novalue", "=1"} {
		_, err := ParseAssignments([]string{bad})
		require.Error(t, err, bad)
		assert.True(t, errors.IsInvalidInput(err))
	}
}

func TestConfigSetGetShow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "config", "set", "RTMP_URL=rtmp://live/key", "VIDEO_BITRATE=4000")
	require.NoError(t, err)
	assert.Contains(t, out, `VIDEO_BITRATE: "2500" -> "4000"`)
	assert.Contains(t, out, "restart required")

	out, err = env.run(t, "config", "get", "VIDEO_BITRATE")
	require.NoError(t, err)
	assert.Equal(t, "4000\n", out)

	out, err = env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "RTMP_URL=rtmp://live/key\n")
	assert.Contains(t, out, "OVERLAY_TEXT=\n")

	out, err = env.run(t, "config", "raw")
	require.NoError(t, err)
	onDisk, err := os.ReadFile(env.streamConf)
	require.NoError(t, err)
	assert.Equal(t, string(onDisk), out)

	_, err = env.run(t, "config", "get", "MISSING")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestConfigSetRejectsInvalidInput(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "config", "set", "BAD KEY=1")
	require.Error(t, err)
	assert.Equal(t, 2, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	_, err = env.run(t, "install", "   ")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestBackupLifecycle(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "config", "set", "RTMP_URL=rtmp://a/1")
	require.NoError(t, err)
	src := filepath.Join(env.dir, "next.conf")
	require.NoError(t, os.WriteFile(src, []byte("RTMP_URL=\"rtmp://b/2\"\n"), 0o644))
	_, err = env.run(t, "config", "save-raw", src)
	require.NoError(t, err)

	out, err := env.run(t, "--json", "backup", "list")
	require.NoError(t, err)
	var slots []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &slots))
	require.Len(t, slots, 1)

	out, err = env.run(t, "backup", "show", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "rtmp://a/1")

	out, err = env.run(t, "backup", "restore", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "restored from slot 1")

	out, err = env.run(t, "config", "get", "RTMP_URL")
	require.NoError(t, err)
	assert.Equal(t, "rtmp://a/1\n", out)

	_, err = env.run(t, "backup", "show", "9")
	require.Error(t, err)
}

func TestSaveRawFromFile(t *testing.T) {
	env := newCLIEnv(t)
	src := filepath.Join(env.dir, "new.conf")
	require.NoError(t, os.WriteFile(src, []byte("RTMP_URL=\"rtmp://raw/key\"\n# keep me\n"), 0o644))

	out, err := env.run(t, "config", "save-raw", src)
	require.NoError(t, err)
	assert.Contains(t, out, "RTMP_URL")

	onDisk, err := os.ReadFile(env.streamConf)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "# keep me")
}

func TestStreamStartRequiresEndpoint(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "stream", "start")
	require.Error(t, err)
	assert.True(t, errors.IsNotReady(err))
	assert.Equal(t, 4, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	_, err = env.run(t, "install", "rtmp://live/key", "--overlay", "Studio A")
	require.NoError(t, err)

	out, err := env.run(t, "stream", "start")
	require.NoError(t, err)
	assert.Contains(t, out, "stream started")
}

func TestAutoRestartAndPower(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "autorestart")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled: false")
	assert.Contains(t, out, "interval: 2h")

	_, err = env.run(t, "autorestart", "--disable", "--interval", "6")
	require.NoError(t, err)
	out, err = env.run(t, "autorestart")
	require.NoError(t, err)
	assert.Contains(t, out, "interval: 6h")

	_, err = env.run(t, "autorestart", "--interval=-1")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = env.run(t, "power", "--wifi", "on", "--eth-speed", "100")
	require.NoError(t, err)
	out, err = env.run(t, "power")
	require.NoError(t, err)
	assert.Contains(t, out, "wifi: true")
	assert.Contains(t, out, "eth speed: 100")

	_, err = env.run(t, "power", "--eth-speed", "42")
	require.Error(t, err)
	_, err = env.run(t, "power", "--hdmi", "maybe")
	require.Error(t, err)
}

func TestHistoryAndStatus(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "install", "rtmp://live/key")
	require.NoError(t, err)

	out, err := env.run(t, "--json", "history")
	require.NoError(t, err)
	var records []eventstore.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.NotEmpty(t, records)
	assert.Equal(t, eventstore.TypeConfigChanged, records[0].Type)

	out, err = env.run(t, "--json", "history", "--operation", records[0].OperationID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Len(t, records, 1)

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ready: true")
	assert.Contains(t, out, "artifact: not installed")
}

func TestOverlayCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "overlay")
	require.NoError(t, err)
	assert.Contains(t, out, `text: ""`)
	assert.Contains(t, out, "scanning: stable")

	out, err = env.run(t, "overlay", "set", "Studio A live")
	require.NoError(t, err)
	assert.Contains(t, out, "overlay updated")

	onDisk, err := os.ReadFile(filepath.Join(env.dir, "run", "overlay.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Studio A live", string(onDisk))

	out, err = env.run(t, "--json", "overlay", "show")
	require.NoError(t, err)
	var ov map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &ov))
	assert.Equal(t, "Studio A live", ov["text"])

	_, err = env.run(t, "overlay", "clear")
	require.NoError(t, err)
	out, err = env.run(t, "overlay")
	require.NoError(t, err)
	assert.Contains(t, out, `text: ""`)
}

func TestArtifactInfoWithoutBinary(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "artifact", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "not installed")
}

func TestConfigInit(t *testing.T) {
	env := newCLIEnv(t)
	target := filepath.Join(env.dir, "fresh.yaml")

	var cli CLI
	parser, err := kong.New(&cli, kong.Name("forpostctl"), Vars("test"))
	require.NoError(t, err)
	kctx, err := parser.Parse([]string{"--config", target, "config", "init"})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, kctx.Run(&Global{Ctx: t.Context(), Out: &out}, &cli))
	assert.True(t, strings.HasSuffix(out.String(), "initialized successfully\n"))

	kctx, err = parser.Parse([]string{"--config", target, "config", "init"})
	require.NoError(t, err)
	err = kctx.Run(&Global{Ctx: t.Context(), Out: &out}, &cli)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestVersionCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "forpostctl")
}
