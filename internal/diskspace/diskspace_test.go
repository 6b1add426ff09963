package diskspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsSpaceEnough(t *testing.T) {
	dir := t.TempDir()
	require.True(t, IsSpaceEnough(context.Background(), dir, 0))
	require.False(t, IsSpaceEnough(context.Background(), dir, 1<<62))
}

func TestMonitorAddRemoveListener(t *testing.T) {
	m := New(nil, t.TempDir(), 1, 0)
	id := m.AddListener(Listener{})
	require.Len(t, m.listeners, 1)
	m.RemoveListener(id)
	require.Len(t, m.listeners, 0)
}

func TestMonitorCheckEmitsWhenThresholdExceedsFreeSpace(t *testing.T) {
	dir := t.TempDir()
	m := New(nil, dir, 1, 1<<62) // impossibly high threshold, always "not enough"

	var got Usage
	fired := make(chan struct{}, 1)
	m.AddListener(Listener{
		OnSpaceNotEnough: func(path string, threshold int64, usage Usage) {
			got = usage
			fired <- struct{}{}
		},
	})

	m.check(context.Background())
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected OnSpaceNotEnough to fire")
	}
	require.Greater(t, got.Total, uint64(0))
}

func TestRecordFilePathsFiltersBySuffixAndAge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.flv")
	recent := filepath.Join(dir, "recent.flv")
	other := filepath.Join(dir, "notes.txt")

	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))

	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))

	paths, err := recordFilePaths(dir, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{old}, paths)
}

func TestReclaimerSkipsDeletionWhenRecyclingDisabled(t *testing.T) {
	dir := t.TempDir()
	m := New(nil, dir, 1, 1<<62)
	r := NewReclaimer(nil, m, dir, false)
	require.False(t, r.freeSpace(context.Background(), 1<<62))
}
