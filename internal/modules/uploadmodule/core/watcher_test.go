package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu     sync.Mutex
	subs   []Submission
	reject int // reject the first N attempts
}

func (r *recordingSubmitter) Submit(sub Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject > 0 {
		r.reject--
		return assert.AnError
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *recordingSubmitter) submissions() []Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Submission(nil), r.subs...)
}

func startWatcher(t *testing.T, dir string, submitter Submitter) *Watcher {
	t.Helper()
	w := NewWatcher(WatcherConfig{
		Directories: []string{dir},
		Visibility:  "private",
		SettleDelay: 50 * time.Millisecond,
	}, submitter, nil, hclog.NewNullLogger())
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestWatcher_SubmitsDroppedMediaFile(t *testing.T) {
	dir := t.TempDir()
	submitter := &recordingSubmitter{}
	startWatcher(t, dir, submitter)

	path := filepath.Join(dir, "holiday_clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really video"), 0o644))

	require.Eventually(t, func() bool {
		return len(submitter.submissions()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	subs := submitter.submissions()
	require.Len(t, subs[0].Files, 1)
	assert.Equal(t, "holiday_clip.mp4", subs[0].Files[0].Name)
	assert.Equal(t, "holiday clip", subs[0].Metadata.Title, "title falls back to a cleaned file name")
	assert.Equal(t, "private", subs[0].Metadata.Visibility)
}

func TestWatcher_IgnoresNonMediaFiles(t *testing.T) {
	dir := t.TempDir()
	submitter := &recordingSubmitter{}
	startWatcher(t, dir, submitter)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, submitter.submissions())
}

func TestWatcher_DebouncesWritesUntilSettled(t *testing.T) {
	dir := t.TempDir()
	submitter := &recordingSubmitter{}
	startWatcher(t, dir, submitter)

	path := filepath.Join(dir, "slow_copy.mkv")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(submitter.submissions()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, submitter.submissions(), 1, "one submission despite many writes")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, &recordingSubmitter{})
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestWatcher_NoDirectoriesIsNoop(t *testing.T) {
	w := NewWatcher(WatcherConfig{}, &recordingSubmitter{}, nil, hclog.NewNullLogger())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
}

func TestWatcher_MissingDirectoryFails(t *testing.T) {
	w := NewWatcher(WatcherConfig{
		Directories: []string{filepath.Join(t.TempDir(), "does-not-exist")},
	}, &recordingSubmitter{}, nil, hclog.NewNullLogger())
	require.Error(t, w.Start())
}
