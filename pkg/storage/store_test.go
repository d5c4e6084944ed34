package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	dir := filepath.Join(t.TempDir(), "localytics")
	return New(StaticDir(dir)), dir
}

func TestStore_DirIsCreatedAndCached(t *testing.T) {
	calls := 0
	dir := filepath.Join(t.TempDir(), "a", "b")
	store := New(func() (string, error) {
		calls++
		return dir, nil
	})

	got, err := store.Dir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = store.Dir()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_DirFailureIsPermanent(t *testing.T) {
	calls := 0
	store := New(func() (string, error) {
		calls++
		return "", errors.New("no application support directory")
	})

	_, err := store.Dir()
	assert.Error(t, err)
	_, err = store.Dir()
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	assert.Error(t, store.AppendText("s_1", "x"))
}

func TestStore_AppendAndRead(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.AppendText("s_1", "one\n"))
	require.NoError(t, store.AppendText("s_1", "two\n"))

	content, err := store.ReadAllText("s_1")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", content)
}

func TestStore_ConcurrentAppendsToDifferentFiles(t *testing.T) {
	store, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for _, name := range []string{"s_a", "s_b", "s_c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, store.AppendText(name, "x\n"))
			}
		}(name)
	}
	wg.Wait()

	for _, name := range []string{"s_a", "s_b", "s_c"} {
		content, err := store.ReadAllText(name)
		require.NoError(t, err)
		assert.Len(t, content, 40)
	}
}

func TestStore_WriteTextTruncates(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.WriteText("m_meta", "long content here"))
	require.NoError(t, store.WriteText("m_meta", "short"))

	content, err := store.ReadAllText("m_meta")
	require.NoError(t, err)
	assert.Equal(t, "short", content)
}

func TestStore_ListFiltersAndSorts(t *testing.T) {
	store, dir := setupTestStore(t)

	for _, name := range []string{"s_c", "u_1", "s_a", "m_meta", "s_b"} {
		require.NoError(t, store.AppendText(name, "x"))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "s_dir"), 0700))

	names, err := store.Names("s_")
	require.NoError(t, err)
	assert.Equal(t, []string{"s_a", "s_b", "s_c"}, names)

	count, err := store.Count("u_")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ListStopsEarly(t *testing.T) {
	store, _ := setupTestStore(t)
	for _, name := range []string{"s_a", "s_b", "s_c"} {
		require.NoError(t, store.AppendText(name, "x"))
	}

	var seen []string
	for file, err := range store.List("s_") {
		require.NoError(t, err)
		seen = append(seen, file.Name)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"s_a", "s_b"}, seen)
}

func TestStore_ListMissingDirectoryIsEmpty(t *testing.T) {
	store, dir := setupTestStore(t)
	_, err := store.Dir()
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	count, err := store.Count("s_")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ExistsAndIsEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	_, ok, err := store.Exists("m_meta")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.WriteText("m_meta", ""))
	file, ok, err := store.Exists("m_meta")
	require.NoError(t, err)
	require.True(t, ok)

	empty, err := store.IsEmpty(file)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, store.AppendText("m_meta", "x"))
	empty, err = store.IsEmpty(file)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestStore_CreationTime(t *testing.T) {
	store, _ := setupTestStore(t)

	before := time.Now().Add(-2 * time.Second)
	require.NoError(t, store.AppendText("m_meta", "x"))
	file, ok, err := store.Exists("m_meta")
	require.NoError(t, err)
	require.True(t, ok)

	created, err := store.CreationTime(file)
	require.NoError(t, err)
	assert.True(t, created.After(before), "creation time %v should be after %v", created, before)
	assert.True(t, created.Before(time.Now().Add(2*time.Second)))
}

func TestStore_RemoveAndRename(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.AppendText("t_1", "payload"))
	require.NoError(t, store.Rename("t_1", "u_1"))

	_, ok, err := store.Exists("t_1")
	require.NoError(t, err)
	assert.False(t, ok)

	content, err := store.ReadAllText("u_1")
	require.NoError(t, err)
	assert.Equal(t, "payload", content)

	require.NoError(t, store.Remove("u_1"))
	require.NoError(t, store.Remove("u_1"))
}

func TestStore_RejectsPathNames(t *testing.T) {
	store, _ := setupTestStore(t)

	for _, name := range []string{"", "..", "../escape", "a/b"} {
		err := store.AppendText(name, "x")
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}
