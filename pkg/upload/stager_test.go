package upload

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/tally/pkg/record"
	"github.com/harun/tally/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHeader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *stubHeader) Build(appKey string) (record.Header, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return record.Header{}, h.err
	}
	h.calls++
	return record.Header{
		DataType: record.TypeHeader,
		Sequence: int64(h.calls),
		ID:       "blob",
		Attributes: record.HeaderAttrs{
			DataType: record.TypeAttributes,
			AppKey:   appKey,
		},
	}, nil
}

func (h *stubHeader) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newTestFiles(t *testing.T) *storage.Store {
	return storage.New(storage.StaticDir(filepath.Join(t.TempDir(), "localytics")))
}

func headerLine(seq string) string {
	return `{"dt":"h","pa":0,"seq":` + seq + `,"u":"blob","attrs":{"dt":"a","au":"key","du":"","lv":"","av":"","dp":"","dll":"","dmo":"","dov":"","iu":""}}` + "\n"
}

func TestStage_NoSessions(t *testing.T) {
	files := newTestFiles(t)
	header := &stubHeader{}
	stager := NewStager(files, header, nil)

	name, staged, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Zero(t, staged)
	assert.Zero(t, header.Calls(), "no header, so the sequence is not advanced")

	count, err := files.Count(StagingPrefix)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStage_MovesSessionsInOrder(t *testing.T) {
	files := newTestFiles(t)
	header := &stubHeader{}
	stager := NewStager(files, header, nil)

	require.NoError(t, files.AppendText("s_b", "b1\nb2\n"))
	require.NoError(t, files.AppendText("s_a", "a1\n"))
	require.NoError(t, files.AppendText("m_meta", "keep\n1"))

	name, staged, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, 2, staged)
	assert.Regexp(t, `^u_[0-9a-f-]{36}$`, name)

	content, err := files.ReadAllText(name)
	require.NoError(t, err)
	assert.Equal(t, headerLine("1")+"a1\nb1\nb2\n", content)

	sessions, err := files.Names("s_")
	require.NoError(t, err)
	assert.Empty(t, sessions)

	temps, err := files.Names(TempPrefix)
	require.NoError(t, err)
	assert.Empty(t, temps)

	_, ok, err := files.Exists("m_meta")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStage_TerminatesTornSession(t *testing.T) {
	files := newTestFiles(t)
	stager := NewStager(files, &stubHeader{}, nil)

	require.NoError(t, files.AppendText("s_a", "a1\npartial"))
	require.NoError(t, files.AppendText("s_b", "b1\n"))

	name, _, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)

	content, err := files.ReadAllText(name)
	require.NoError(t, err)
	assert.Equal(t, headerLine("1")+"a1\npartial\nb1\n", content)
}

func TestStage_EachRunGetsNewSequence(t *testing.T) {
	files := newTestFiles(t)
	header := &stubHeader{}
	stager := NewStager(files, header, nil)

	require.NoError(t, files.AppendText("s_a", "a\n"))
	first, _, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)

	require.NoError(t, files.AppendText("s_b", "b\n"))
	second, _, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, header.Calls())

	names, err := files.Names(StagingPrefix)
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestStage_RemovesInterruptedTempFiles(t *testing.T) {
	files := newTestFiles(t)
	stager := NewStager(files, &stubHeader{}, nil)

	require.NoError(t, files.AppendText(TempPrefix+"crashed", "half a blob"))

	_, _, err := stager.Stage(context.Background(), "key")
	require.NoError(t, err)

	temps, err := files.Names(TempPrefix)
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestStage_HeaderFailureKeepsSessions(t *testing.T) {
	files := newTestFiles(t)
	stager := NewStager(files, &stubHeader{err: errors.New("metadata unreadable")}, nil)

	require.NoError(t, files.AppendText("s_a", "a\n"))

	_, _, err := stager.Stage(context.Background(), "key")
	assert.ErrorContains(t, err, "metadata unreadable")

	sessions, err := files.Names("s_")
	require.NoError(t, err)
	assert.Equal(t, []string{"s_a"}, sessions)

	staged, err := files.Count(StagingPrefix)
	require.NoError(t, err)
	assert.Zero(t, staged)
}

func TestStage_HoldsSessionLock(t *testing.T) {
	files := newTestFiles(t)
	lock := &sync.Mutex{}
	stager := NewStager(files, &stubHeader{}, lock)

	require.NoError(t, files.AppendText("s_a", "a\n"))

	lock.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := stager.Stage(context.Background(), "key")
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("stage ran while the session lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	// A record appended under the lock is staged, not lost.
	require.NoError(t, files.AppendText("s_a", "late\n"))
	lock.Unlock()
	<-done

	names, err := files.Names(StagingPrefix)
	require.NoError(t, err)
	require.Len(t, names, 1)
	content, err := files.ReadAllText(names[0])
	require.NoError(t, err)
	assert.Contains(t, content, "a\nlate\n")
}
