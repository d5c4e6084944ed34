package blob

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/tally/pkg/meta"
	"github.com/harun/tally/pkg/platform"
	"github.com/harun/tally/pkg/record"
	"github.com/harun/tally/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBuilder(t *testing.T) (*Builder, *meta.Store) {
	dir := t.TempDir()
	store := meta.New(storage.New(storage.StaticDir(filepath.Join(dir, "localytics"))))
	prefs := platform.NewFilePreferences(filepath.Join(dir, "prefs.yaml"))
	return NewBuilder(store, prefs, &platform.Info{AppVersion: "1.2.3"}), store
}

func TestBuild_SequenceIncrementsByOne(t *testing.T) {
	b, store := setupTestBuilder(t)

	first, err := b.Build("app-key")
	require.NoError(t, err)
	second, err := b.Build("app-key")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, first.Sequence+1, second.Sequence)
	assert.NotEqual(t, first.ID, second.ID)

	rec, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Sequence)
}

func TestBuild_InstallAndDeviceIDsAreStable(t *testing.T) {
	b, store := setupTestBuilder(t)

	first, err := b.Build("app-key")
	require.NoError(t, err)
	second, err := b.Build("app-key")
	require.NoError(t, err)

	rec, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, rec.InstallID, first.Attributes.InstallID)
	assert.Equal(t, first.Attributes.InstallID, second.Attributes.InstallID)
	assert.Equal(t, first.Attributes.DeviceID, second.Attributes.DeviceID)
	assert.NotEmpty(t, first.Attributes.DeviceID)
}

func TestBuild_PersistedAt(t *testing.T) {
	b, _ := setupTestBuilder(t)

	first, err := b.Build("app-key")
	require.NoError(t, err)
	assert.Zero(t, first.PersistedAt, "no metadata existed before the first header")

	second, err := b.Build("app-key")
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), second.PersistedAt, 60)
}

func TestBuild_Attributes(t *testing.T) {
	b, _ := setupTestBuilder(t)

	h, err := b.Build("app-key")
	require.NoError(t, err)

	assert.Equal(t, record.TypeHeader, h.DataType)
	assert.Equal(t, record.TypeAttributes, h.Attributes.DataType)
	assert.Equal(t, "app-key", h.Attributes.AppKey)
	assert.Equal(t, platform.LibraryVersion, h.Attributes.LibraryVersion)
	assert.Equal(t, "1.2.3", h.Attributes.AppVersion)
	assert.Equal(t, platform.PlatformName(), h.Attributes.Platform)
	assert.Len(t, h.Attributes.Language, 2)
	assert.Equal(t, platform.OSVersion(), h.Attributes.OSVersion)
	assert.Equal(t, platform.DeviceModel(), h.Attributes.DeviceModel)
}

type failingMeta struct{ meta.Record }

func (f failingMeta) Get() (meta.Record, error)           { return f.Record, nil }
func (f failingMeta) AdvanceSequence(int64) error         { return errors.New("disk full") }
func (f failingMeta) CreatedAt() (time.Time, bool, error) { return time.Time{}, false, nil }

func TestBuild_AdvanceFailure(t *testing.T) {
	prefs := platform.NewFilePreferences(filepath.Join(t.TempDir(), "prefs.yaml"))
	b := NewBuilder(failingMeta{meta.Record{InstallID: "i", Sequence: 4}}, prefs, nil)

	_, err := b.Build("app-key")
	assert.ErrorContains(t, err, "disk full")
}
