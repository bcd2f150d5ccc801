package backup

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/storage"
)

const cfgPath = "/etc/forpost/stream.conf"

type countingOwner struct{ n int }

func (c *countingOwner) Reassign(context.Context, string) error {
	c.n++
	return nil
}

func newStore(t *testing.T, initial string, opts Options) (*Store, *storage.FS, *countingOwner) {
	t.Helper()
	fs := storage.NewMemory()
	if initial != "" {
		require.NoError(t, fs.WriteFile(cfgPath, []byte(initial), 0o644))
	}
	owner := &countingOwner{}
	return NewStore(fs, cfgPath, owner, opts), fs, owner
}

func content(t *testing.T, fs *storage.FS, p string) string {
	t.Helper()
	data, err := fs.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestSaveRawRotation(t *testing.T) {
	ctx := context.Background()
	s, fs, _ := newStore(t, "save #0\n", Options{})

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.SaveRaw(ctx, fmt.Sprintf("save #%d\n", i)))
	}

	assert.Equal(t, "save #4\n", content(t, fs, cfgPath))
	for slot, want := range map[int]string{1: "save #3\n", 2: "save #2\n", 3: "save #1\n"} {
		snap, err := s.Get(slot)
		require.NoError(t, err)
		assert.Equal(t, want, snap.Content, "slot %d", slot)
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, sl := range list {
		assert.Equal(t, i+1, sl.Slot)
		assert.Equal(t, fmt.Sprintf("stream.conf.backup.%d", i+1), sl.Filename)
	}

	ok, err := fs.Exists(cfgPath + ".backup.4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRawWithoutExistingFile(t *testing.T) {
	s, fs, owner := newStore(t, "", Options{})

	require.NoError(t, s.SaveRaw(context.Background(), "A=1\n"))
	assert.Equal(t, "A=1\n", content(t, fs, cfgPath))

	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 1, owner.n)
}

func TestSaveRawRejectsEmpty(t *testing.T) {
	s, fs, _ := newStore(t, "A=1\n", Options{})

	err := s.SaveRaw(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, "A=1\n", content(t, fs, cfgPath))
}

func TestRestoreOutOfRangeAndEmpty(t *testing.T) {
	s, _, _ := newStore(t, "A=1\n", Options{})
	require.NoError(t, s.SaveRaw(context.Background(), "A=2\n"))

	for _, slot := range []int{0, 4, -1} {
		_, err := s.Restore(context.Background(), slot)
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err), "slot %d", slot)
	}

	_, err := s.Restore(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRestoreDoesNotRotateByDefault(t *testing.T) {
	ctx := context.Background()
	s, fs, _ := newStore(t, "v0\n", Options{})
	require.NoError(t, s.SaveRaw(ctx, "v1\n"))
	require.NoError(t, s.SaveRaw(ctx, "v2\n"))

	snap, err := s.Restore(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "v0\n", snap.Content)
	assert.Equal(t, "v0\n", content(t, fs, cfgPath))

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
	first, _ := s.Get(1)
	assert.Equal(t, "v1\n", first.Content)
}

func TestRestoreWithSnapshotBeforeRestore(t *testing.T) {
	ctx := context.Background()
	s, fs, _ := newStore(t, "v0\n", Options{SnapshotBeforeRestore: true})
	require.NoError(t, s.SaveRaw(ctx, "v1\n"))
	require.NoError(t, s.SaveRaw(ctx, "v2\n"))

	_, err := s.Restore(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "v0\n", content(t, fs, cfgPath))

	first, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "v2\n", first.Content)
	third, err := s.Get(3)
	require.NoError(t, err)
	assert.Equal(t, "v0\n", third.Content)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, "v0\n", Options{})
	require.NoError(t, s.SaveRaw(ctx, "v1\n"))

	require.NoError(t, s.Delete(1))
	_, err := s.Get(1)
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(s.Delete(1)))
	assert.True(t, errors.IsNotFound(s.Delete(9)))
}

func TestCustomDepth(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, "v0\n", Options{Depth: 1})
	require.NoError(t, s.SaveRaw(ctx, "v1\n"))
	require.NoError(t, s.SaveRaw(ctx, "v2\n"))

	assert.Equal(t, 1, s.Depth())
	snap, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "v1\n", snap.Content)
	_, err = s.Get(2)
	assert.True(t, errors.IsNotFound(err))
}
